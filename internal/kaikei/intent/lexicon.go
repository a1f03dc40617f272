package intent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon holds every vocabulary list the local tiers and the confirmation
// step rely on.
type Lexicon struct {
	Currency          []string `yaml:"currency"`
	TransferVerbs     []string `yaml:"transfer_verbs"`
	RelationalMarkers []string `yaml:"relational_markers"`
	RecipientFillers  []string `yaml:"recipient_fillers"`
	BalanceTerms      []string `yaml:"balance_terms"`
	HelpTerms         []string `yaml:"help_terms"`
	Affirmative       []string `yaml:"affirmative"`
	Cancel            []string `yaml:"cancel"`
}

// DefaultLexicon returns the embedded German/English vocabulary.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("intent: embedded lexicon: %v", err))
	}
	return lex
}

// LoadLexicon reads a YAML lexicon from path.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intent: read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes and checks a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("intent: parse lexicon: %w", err)
	}
	if err := lex.validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

func (l *Lexicon) validate() error {
	required := map[string][]string{
		"currency":           l.Currency,
		"transfer_verbs":     l.TransferVerbs,
		"relational_markers": l.RelationalMarkers,
		"balance_terms":      l.BalanceTerms,
		"help_terms":         l.HelpTerms,
		"affirmative":        l.Affirmative,
	}
	for name, terms := range required {
		if len(terms) == 0 {
			return fmt.Errorf("intent: lexicon: %s must not be empty", name)
		}
		for _, t := range terms {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("intent: lexicon: %s contains an empty term", name)
			}
		}
	}
	return nil
}

// NormalizeReply lowercases a reply and strips surrounding whitespace and
// punctuation, so "Ja!" and " ja " both read as "ja".
func NormalizeReply(s string) string {
	return strings.TrimFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// IsAffirmative reports whether reply confirms a pending action. Anything
// that is not an exact affirmative term is a decline.
func (l *Lexicon) IsAffirmative(reply string) bool {
	return containsTerm(l.Affirmative, NormalizeReply(reply))
}

// IsCancel reports whether reply is a cancel keyword.
func (l *Lexicon) IsCancel(reply string) bool {
	n := NormalizeReply(reply)
	return n != "" && containsTerm(l.Cancel, n)
}

func containsTerm(terms []string, normalized string) bool {
	for _, t := range terms {
		if strings.ToLower(t) == normalized {
			return true
		}
	}
	return false
}
