// Package wallet stores per-user funding sources: one ed25519 key pair per
// wallet, an address derived from it, and the signing key sealed at rest.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/bdobrica/Kaikei/common/crypto"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

const (
	maxNameLen     = 32
	randomNameLen  = 6
	randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrDuplicateName is returned when the user already has a wallet with
	// that name on the network.
	ErrDuplicateName = errors.New("wallet: name already in use")
	// ErrNotFound is returned for unknown wallet IDs or names.
	ErrNotFound = errors.New("wallet: not found")
)

// FundingSource is a wallet a user can spend from.
type FundingSource struct {
	ID        string
	UserID    string
	Network   ledger.Network
	Name      string
	Address   string
	PublicKey ed25519.PublicKey
	CreatedAt time.Time
}

// Store is the SQLite-backed wallet/key store.
type Store struct {
	db     *sql.DB
	sealer *crypto.Sealer
	now    func() time.Time
	rand   io.Reader
}

// NewStore returns a store over db. The wallets table must exist.
func NewStore(db *sql.DB, sealer *crypto.Sealer) *Store {
	return &Store{db: db, sealer: sealer, now: time.Now, rand: rand.Reader}
}

// List returns the user's wallets on network, oldest first. The first entry
// is the default funding source.
func (s *Store) List(ctx context.Context, userID string, network ledger.Network) ([]FundingSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, network, name, address, public_key, created_at
		FROM wallets WHERE user_id = ? AND network = ?
		ORDER BY created_at ASC, rowid ASC
	`, userID, string(network))
	if err != nil {
		return nil, fmt.Errorf("wallet: list: %w", err)
	}
	defer rows.Close()

	var out []FundingSource
	for rows.Next() {
		fs, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wallet: list: %w", err)
	}
	return out, nil
}

// Default returns the first wallet for the user on network.
func (s *Store) Default(ctx context.Context, userID string, network ledger.Network) (FundingSource, bool, error) {
	all, err := s.List(ctx, userID, network)
	if err != nil || len(all) == 0 {
		return FundingSource{}, false, err
	}
	return all[0], true, nil
}

// Create generates a key pair and stores a new wallet. The name is
// sanitized; an empty result gets a random "wallet_xxxxxx" name.
func (s *Store) Create(ctx context.Context, userID string, network ledger.Network, name string) (FundingSource, error) {
	name = SanitizeName(name)
	if name == "" {
		generated, err := s.randomName()
		if err != nil {
			return FundingSource{}, err
		}
		name = generated
	}

	pub, priv, err := ed25519.GenerateKey(s.rand)
	if err != nil {
		return FundingSource{}, fmt.Errorf("wallet: generate key: %w", err)
	}
	address, err := DeriveAddress(network, pub)
	if err != nil {
		return FundingSource{}, err
	}

	fs := FundingSource{
		ID:        uuid.NewString(),
		UserID:    userID,
		Network:   network,
		Name:      name,
		Address:   address,
		PublicKey: pub,
		CreatedAt: s.now().UTC(),
	}

	sealed, err := s.sealer.Seal(priv.Seed(), []byte(fs.ID))
	if err != nil {
		return FundingSource{}, fmt.Errorf("wallet: seal signing key: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, network, name, address, public_key, sealed_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, fs.ID, fs.UserID, string(fs.Network), fs.Name, fs.Address, []byte(fs.PublicKey), sealed, fs.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return FundingSource{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return FundingSource{}, fmt.Errorf("wallet: insert: %w", err)
	}
	return fs, nil
}

// Get looks a wallet up by ID.
func (s *Store) Get(ctx context.Context, id string) (FundingSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, network, name, address, public_key, created_at
		FROM wallets WHERE id = ?
	`, id)
	fs, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FundingSource{}, ErrNotFound
	}
	return fs, err
}

// Delete removes the named wallet and its sealed key.
func (s *Store) Delete(ctx context.Context, userID string, network ledger.Network, name string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM wallets WHERE user_id = ? AND network = ? AND name = ?
	`, userID, string(network), name)
	if err != nil {
		return fmt.Errorf("wallet: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SigningKey unseals the private key for wallet id.
func (s *Store) SigningKey(ctx context.Context, id string) (ed25519.PrivateKey, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT sealed_key FROM wallets WHERE id = ?`, id).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: load signing key: %w", err)
	}
	seed, err := s.sealer.Open(sealed, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("wallet: unseal signing key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (FundingSource, error) {
	var (
		fs  FundingSource
		net string
		pub []byte
	)
	if err := row.Scan(&fs.ID, &fs.UserID, &net, &fs.Name, &fs.Address, &pub, &fs.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FundingSource{}, err
		}
		return FundingSource{}, fmt.Errorf("wallet: scan: %w", err)
	}
	fs.Network = ledger.Network(net)
	fs.PublicKey = ed25519.PublicKey(pub)
	return fs, nil
}

func (s *Store) randomName() (string, error) {
	var b strings.Builder
	b.WriteString("wallet_")
	limit := big.NewInt(int64(len(randomAlphabet)))
	for i := 0; i < randomNameLen; i++ {
		n, err := rand.Int(s.rand, limit)
		if err != nil {
			return "", fmt.Errorf("wallet: random name: %w", err)
		}
		b.WriteByte(randomAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// SanitizeName keeps letters, digits, '-' and '_' and truncates to 32 runes.
func SanitizeName(name string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(name) {
		if count == maxNameLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
			count++
		}
	}
	return b.String()
}

// DeriveAddress builds an enterprise-style payment address: the network
// prefix followed by blake2b-224 of the public key in the bech32 alphabet.
func DeriveAddress(network ledger.Network, pub ed25519.PublicKey) (string, error) {
	h, err := blake2b.New(28, nil)
	if err != nil {
		return "", fmt.Errorf("wallet: blake2b: %w", err)
	}
	h.Write(pub)
	return network.AddressPrefix() + ledger.EncodeData(h.Sum(nil)), nil
}
