package intent_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

func TestLexicon_Replies(t *testing.T) {
	lex := intent.DefaultLexicon()

	for _, s := range []string{"ja", "Ja!", " yes ", "Bestätigen", "y", "CONFIRM."} {
		assert.True(t, lex.IsAffirmative(s), "%q should be affirmative", s)
	}
	for _, s := range []string{"nein", "ja bitte", "jaa", "", "ok", "vielleicht"} {
		assert.False(t, lex.IsAffirmative(s), "%q should not be affirmative", s)
	}

	assert.True(t, lex.IsCancel("Abbrechen"))
	assert.True(t, lex.IsCancel("stop!"))
	assert.False(t, lex.IsCancel(""))
	assert.False(t, lex.IsCancel("my_wallet"))
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
currency: [ada]
transfer_verbs: [send]
relational_markers: [to]
balance_terms: [balance]
help_terms: [help]
affirmative: [yes]
`), 0o600))

	lex, err := intent.LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"yes"}, lex.Affirmative)
	assert.Empty(t, lex.Cancel)

	_, err = intent.LoadLexicon(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLexicon_RejectsEmptyLists(t *testing.T) {
	_, err := intent.ParseLexicon([]byte("currency: [ada]\n"))
	assert.Error(t, err)

	_, err = intent.ParseLexicon([]byte(`
currency: [" "]
transfer_verbs: [send]
relational_markers: [to]
balance_terms: [balance]
help_terms: [help]
affirmative: [yes]
`))
	assert.Error(t, err)
}
