package intent_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

func newMatcher(t *testing.T) *intent.Matcher {
	t.Helper()
	m, err := intent.NewMatcher(intent.DefaultLexicon())
	require.NoError(t, err)
	return m
}

func TestMatcher_Match(t *testing.T) {
	m := newMatcher(t)

	send := func(amount float64, to string) intent.Result {
		return intent.Result{Intent: intent.SendFunds, Entities: intent.Entities{Amount: amount, Recipient: to}}
	}

	tests := []struct {
		name string
		text string
		want intent.Result
	}{
		{"german send", "sende 5 ada an abc123xyz", send(5, "abc123xyz")},
		{"capitalised verb", "Sende 10 ADA an Bob", send(10, "Bob")},
		{"decimal comma", "überweise 2,5 ada an alice", send(2.5, "alice")},
		{"decimal point", "send 0.75 ada to carol", send(0.75, "carol")},
		{"fillers skipped", "schicke 3 ada an die adresse addr_test1qzabcdefgh", send(3, "addr_test1qzabcdefgh")},
		{"words between currency and marker", "bitte sende 12 ada jetzt sofort an dave", send(12, "dave")},
		{"no space before currency", "send 7ada to erin", send(7, "erin")},
		{"balance german", "wie viel ada habe ich", intent.Result{Intent: intent.CheckBalance}},
		{"balance english", "How much ADA do I have?", intent.Result{Intent: intent.CheckBalance}},
		{"balance needs currency", "wie viel uhr ist es", intent.Result{Intent: intent.Unknown}},
		{"currency inside word", "wie viel kanada", intent.Result{Intent: intent.Unknown}},
		{"help", "Hilfe bitte", intent.Result{Intent: intent.Help}},
		{"help english", "what can you do?", intent.Result{Intent: intent.Help}},
		{"send without recipient", "sende 5 ada", intent.Result{Intent: intent.Unknown}},
		{"send without amount falls to unknown", "sende ada an bob", intent.Result{Intent: intent.Unknown}},
		{"gibberish", "guten morgen", intent.Result{Intent: intent.Unknown}},
		{"empty", "", intent.Result{Intent: intent.Unknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestMatcher_SendBeatsBalance(t *testing.T) {
	m := newMatcher(t)
	got := m.Match("send 5 ada to bob, how much ada is left?")
	if got.Intent != intent.SendFunds {
		t.Fatalf("intent = %s, want send_funds", got.Intent)
	}
}

func TestMatcher_ResolveUnknownIsUnresolved(t *testing.T) {
	m := newMatcher(t)
	res := m.Resolve(context.Background(), "nothing here")
	if res.Outcome != intent.Unresolved {
		t.Fatalf("outcome = %s, want unresolved", res.Outcome)
	}
	if res.Result.Intent != intent.Unknown {
		t.Fatalf("intent = %s, want unknown", res.Result.Intent)
	}

	res = m.Resolve(context.Background(), "hilfe")
	if res.Outcome != intent.Resolved || res.Tier != "patterns" {
		t.Fatalf("got %+v, want resolved by patterns", res)
	}
}

func TestMatcher_CustomLexicon(t *testing.T) {
	lex, err := intent.ParseLexicon([]byte(`
currency: [ada, lovelace]
transfer_verbs: [give]
relational_markers: [unto]
balance_terms: [stash]
help_terms: [halp]
affirmative: [aye]
cancel: [nay]
`))
	require.NoError(t, err)
	m, err := intent.NewMatcher(lex)
	require.NoError(t, err)

	want := intent.Result{Intent: intent.SendFunds, Entities: intent.Entities{Amount: 4, Recipient: "zed"}}
	if diff := cmp.Diff(want, m.Match("give 4 lovelace unto zed")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := m.Match("sende 5 ada an bob"); got.Intent != intent.Unknown {
		t.Errorf("default verbs should not match a custom lexicon, got %s", got.Intent)
	}
}
