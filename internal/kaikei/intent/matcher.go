package intent

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// Word edges for terms that may contain non-ASCII letters; \b in RE2
	// only knows ASCII word characters.
	leftEdge  = `(?:^|[^\p{L}\p{N}_])`
	rightEdge = `(?:[^\p{L}\p{N}_]|$)`
	separator = `[^\p{L}\p{N}_]+`

	// Recipient tokens: ASCII letters, digits and underscore, which covers
	// bech32 addresses including the "addr_test" prefix.
	recipientToken = `([A-Za-z0-9_]+)`
	amountToken    = `(\d+(?:[.,]\d+)?)`
)

// Matcher is the deterministic pattern tier. Rules run in a fixed order
// (send, balance, help) and the first match wins.
type Matcher struct {
	send     *regexp.Regexp
	balance  *regexp.Regexp
	currency *regexp.Regexp
	help     *regexp.Regexp
}

// NewMatcher compiles the pattern rules from lex.
func NewMatcher(lex *Lexicon) (*Matcher, error) {
	send := `(?is)` + alternation(lex.TransferVerbs) +
		`.*?` + leftEdge + amountToken + `\s*` + alternation(lex.Currency) + separator +
		`(?:.*?` + separator + `)??` + alternation(lex.RelationalMarkers) + `\s+`
	if len(lex.RecipientFillers) > 0 {
		send += `(?:` + alternation(lex.RecipientFillers) + `\s+)*`
	}
	send += recipientToken

	m := &Matcher{}
	var err error
	if m.send, err = regexp.Compile(send); err != nil {
		return nil, err
	}
	if m.balance, err = regexp.Compile(`(?is)` + alternation(lex.BalanceTerms)); err != nil {
		return nil, err
	}
	if m.currency, err = regexp.Compile(`(?is)` + leftEdge + alternation(lex.Currency) + rightEdge); err != nil {
		return nil, err
	}
	if m.help, err = regexp.Compile(`(?is)` + alternation(lex.HelpTerms)); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements Tier.
func (m *Matcher) Name() string { return "patterns" }

// Resolve implements Tier.
func (m *Matcher) Resolve(_ context.Context, text string) Resolution {
	res := m.Match(text)
	if res.Intent == Unknown {
		return unresolved()
	}
	return Resolution{Outcome: Resolved, Result: res, Tier: m.Name()}
}

// Match classifies text. It never fails; unmatched text is Unknown.
func (m *Matcher) Match(text string) Result {
	if sm := m.send.FindStringSubmatch(text); sm != nil {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(sm[1], ",", "."), 64)
		if err != nil {
			amount = 0
		}
		return Result{Intent: SendFunds, Entities: Entities{Amount: amount, Recipient: sm[2]}}
	}
	if m.balance.MatchString(text) && m.currency.MatchString(text) {
		return Result{Intent: CheckBalance}
	}
	if m.help.MatchString(text) {
		return Result{Intent: Help}
	}
	return Result{Intent: Unknown}
}

// alternation builds a non-capturing group of quoted terms, longest first so
// "überweise" wins over "überweis".
func alternation(terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	parts := make([]string, 0, len(sorted))
	for _, t := range sorted {
		fields := strings.Fields(t)
		for i, f := range fields {
			fields[i] = regexp.QuoteMeta(f)
		}
		parts = append(parts, strings.Join(fields, `\s+`))
	}
	return `(?:` + strings.Join(parts, "|") + `)`
}
