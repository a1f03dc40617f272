package intent_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Classify(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"intent":"send_funds","entities":{"amount":5,"recipient":"abc123xyz"}}`)
	c := intent.NewOpenAI(intent.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})

	got, err := c.Classify(context.Background(), "sende 5 ada an abc123xyz")
	require.NoError(t, err)
	want := intent.Result{Intent: intent.SendFunds, Entities: intent.Entities{Amount: 5, Recipient: "abc123xyz"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    error
	}{
		{"rate limited", http.StatusTooManyRequests, "", intent.ErrRateLimit},
		{"server error", http.StatusInternalServerError, "", intent.ErrUnavailable},
		{"prose answer", http.StatusOK, "Sure! You want to send money.", intent.ErrMalformedOutput},
		{"schema violation", http.StatusOK, `{"intent":"send_funds"}`, intent.ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content)
			c := intent.NewOpenAI(intent.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
			_, err := c.Classify(context.Background(), "hello")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAI_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := intent.NewOpenAI(intent.OpenAIConfig{APIKey: "sk-test", BaseURL: url, Timeout: time.Second})
	_, err := c.Classify(context.Background(), "hello")
	if !errors.Is(err, intent.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
