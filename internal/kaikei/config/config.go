// Package config loads Kaikei settings from the environment. A .env file is
// read first when present; real environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/bdobrica/Kaikei/common/crypto"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

// Prefix is prepended to every variable name.
const Prefix = "KAIKEI"

// Classifier backends.
const (
	ClassifierOpenAI = "openai"
	ClassifierGemini = "gemini"
	ClassifierNone   = "none"
)

// Config is the typed process configuration.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	MatrixHomeserver  string   `envconfig:"MATRIX_HOMESERVER"`
	MatrixUserID      string   `envconfig:"MATRIX_USER_ID"`
	MatrixAccessToken string   `envconfig:"MATRIX_ACCESS_TOKEN"`
	MatrixRooms       []string `envconfig:"MATRIX_ROOMS"`

	AuthorizedUsers []string `envconfig:"AUTHORIZED_USERS"`
	DefaultNetwork  string   `envconfig:"DEFAULT_NETWORK" default:"testnet"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"kaikei.db"`
	MasterKey    string `envconfig:"MASTER_KEY"`

	Classifier          string        `envconfig:"CLASSIFIER" default:"openai"`
	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel         string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiAPIKey        string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL       string        `envconfig:"GEMINI_BASE_URL"`
	GeminiModel         string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	ClassifierTimeout   time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"10s"`
	ClassifierRateLimit int           `envconfig:"CLASSIFIER_RATE_LIMIT" default:"20"`
	RedisURL            string        `envconfig:"REDIS_URL"`

	TranscribeModel    string `envconfig:"TRANSCRIBE_MODEL" default:"whisper-1"`
	TranscribeLanguage string `envconfig:"TRANSCRIBE_LANGUAGE"`

	BlockfrostProjectIDTestnet string `envconfig:"BLOCKFROST_PROJECT_ID_TESTNET"`
	BlockfrostProjectIDMainnet string `envconfig:"BLOCKFROST_PROJECT_ID_MAINNET"`

	PendingTTL     time.Duration `envconfig:"PENDING_TTL" default:"5m"`
	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"24h"`
	HTTPAddr       string        `envconfig:"HTTP_ADDR"`
	LexiconPath    string        `envconfig:"LEXICON_PATH"`
}

// Load reads envFile (skipped when empty or missing), then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Classifier = strings.ToLower(strings.TrimSpace(c.Classifier))
	c.MatrixRooms = compact(c.MatrixRooms)
	c.AuthorizedUsers = compact(c.AuthorizedUsers)
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every problem that keeps the bot from serving.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"MATRIX_HOMESERVER", c.MatrixHomeserver},
		{"MATRIX_USER_ID", c.MatrixUserID},
		{"MATRIX_ACCESS_TOKEN", c.MatrixAccessToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s_%s is required", Prefix, r.name))
		}
	}
	if err := c.ValidateStorage(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ValidateClassifier(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ledger.ParseNetwork(c.DefaultNetwork); err != nil {
		errs = append(errs, fmt.Errorf("%s_DEFAULT_NETWORK: %w", Prefix, err))
	}
	if c.PendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s_PENDING_TTL must be positive", Prefix))
	}
	if c.Environment != "development" && c.Environment != "production" {
		errs = append(errs, fmt.Errorf("%s_ENVIRONMENT must be development or production, got %q", Prefix, c.Environment))
	}
	return errors.Join(errs...)
}

// ValidateStorage checks what opening the wallet store needs.
func (c *Config) ValidateStorage() error {
	var errs []error
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, fmt.Errorf("%s_DATABASE_PATH is required", Prefix))
	}
	if _, err := crypto.ParseMasterKey(c.MasterKey); err != nil {
		errs = append(errs, fmt.Errorf("%s_MASTER_KEY: %w", Prefix, err))
	}
	return errors.Join(errs...)
}

// ValidateClassifier checks the classifier selection and its credentials.
func (c *Config) ValidateClassifier() error {
	switch c.Classifier {
	case ClassifierNone:
		return nil
	case ClassifierOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%s_OPENAI_API_KEY is required for the openai classifier", Prefix)
		}
	case ClassifierGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%s_GEMINI_API_KEY is required for the gemini classifier", Prefix)
		}
	default:
		return fmt.Errorf("%s_CLASSIFIER must be openai, gemini or none, got %q", Prefix, c.Classifier)
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("%s_CLASSIFIER_TIMEOUT must be positive", Prefix)
	}
	return nil
}

// Network returns the parsed default network, falling back to testnet.
func (c *Config) Network() ledger.Network {
	n, err := ledger.ParseNetwork(c.DefaultNetwork)
	if err != nil {
		return ledger.Testnet
	}
	return n
}

// MasterKeyBytes decodes MasterKey.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	return crypto.ParseMasterKey(c.MasterKey)
}

// BlockfrostProjects maps each network to its configured project ID.
// Networks without one are omitted.
func (c *Config) BlockfrostProjects() map[ledger.Network]string {
	out := make(map[ledger.Network]string, 2)
	if c.BlockfrostProjectIDTestnet != "" {
		out[ledger.Testnet] = c.BlockfrostProjectIDTestnet
	}
	if c.BlockfrostProjectIDMainnet != "" {
		out[ledger.Mainnet] = c.BlockfrostProjectIDMainnet
	}
	return out
}
