package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// localRefPrefix marks transfers recorded by the journal rather than seen
// on chain.
const localRefPrefix = "local_"

// Journal records submitted transfers in SQLite. It stands in for a signer
// and broadcaster: each submission gets a local reference and stays in the
// "submitted" state.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// NewJournal returns a journal over db. The transfers table must exist.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores t and returns its receipt.
func (j *Journal) Record(ctx context.Context, t Transfer) (Receipt, error) {
	ref := localRefPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transfers (tx_ref, network, source_id, source_address, recipient, lovelace, state, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, 'submitted', ?)
	`, ref, string(t.Network), t.SourceID, t.SourceAddress, t.Recipient, t.Lovelace, j.now().UTC())
	if err != nil {
		return Receipt{}, fmt.Errorf("journal: record transfer: %w", err)
	}
	return Receipt{TxRef: ref, Network: t.Network}, nil
}

// Lookup returns a journaled transfer's status, or ErrNotFound.
func (j *Journal) Lookup(ctx context.Context, network Network, ref string) (TxStatus, error) {
	var (
		st  TxStatus
		net string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT tx_ref, network, state, submitted_at FROM transfers WHERE tx_ref = ? AND network = ?
	`, ref, string(network)).Scan(&st.TxRef, &net, &st.State, &st.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TxStatus{}, ErrNotFound
	}
	if err != nil {
		return TxStatus{}, fmt.Errorf("journal: lookup %s: %w", ref, err)
	}
	st.Network = Network(net)
	return st, nil
}

// Outflow sums lovelace journaled out of address on network that has not
// been confirmed yet.
func (j *Journal) Outflow(ctx context.Context, network Network, address string) (int64, error) {
	var total sql.NullInt64
	err := j.db.QueryRowContext(ctx, `
		SELECT SUM(lovelace) FROM transfers
		WHERE network = ? AND source_address = ? AND state = 'submitted'
	`, string(network), address).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("journal: outflow: %w", err)
	}
	return total.Int64, nil
}

// IsLocalRef reports whether ref was issued by a Journal.
func IsLocalRef(ref string) bool {
	return strings.HasPrefix(ref, localRefPrefix)
}
