package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spoolFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func whisperServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "OggS-fake-audio", string(data))
		assert.Equal(t, "voice.ogg", hdr.Filename)

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe(t *testing.T) {
	dir := t.TempDir()
	srv := whisperServer(t, http.StatusOK, "  Wie viel ADA habe ich?  ")
	w := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Language: "de", TempDir: dir})

	text, err := w.Transcribe(context.Background(), strings.NewReader("OggS-fake-audio"))
	require.NoError(t, err)
	assert.Equal(t, "Wie viel ADA habe ich?", text)
	assert.Empty(t, spoolFiles(t, dir), "spool file must be removed")
}

func TestTranscribe_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
		want   error
	}{
		{"api error", http.StatusBadRequest, "", nil},
		{"empty transcript", http.StatusOK, "   ", ErrEmptyTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			srv := whisperServer(t, tt.status, tt.text)
			w := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Language: "de", TempDir: dir})

			_, err := w.Transcribe(context.Background(), strings.NewReader("OggS-fake-audio"))
			require.Error(t, err)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want), "err = %v", err)
			}
			assert.Empty(t, spoolFiles(t, dir))
		})
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", TempDir: dir})

	_, err := w.Transcribe(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyAudio)
	assert.Empty(t, spoolFiles(t, dir))
}

func TestTranscribe_Unreachable(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", TempDir: dir})

	_, err := w.Transcribe(context.Background(), strings.NewReader("OggS"))
	assert.Error(t, err)
	assert.Empty(t, spoolFiles(t, dir))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("network reset") }

func TestSpool_RemovesFileOnReadError(t *testing.T) {
	dir := t.TempDir()
	_, _, err := spool(dir, ".ogg", failingReader{})
	assert.Error(t, err)
	assert.Empty(t, spoolFiles(t, dir))
}
