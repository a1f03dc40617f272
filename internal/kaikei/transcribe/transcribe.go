// Package transcribe turns voice messages into text through an
// OpenAI-compatible /audio/transcriptions endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bdobrica/Kaikei/common/logx"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 60 * time.Second

	// MaxAudioBytes caps the size of one voice message.
	MaxAudioBytes = 25 << 20
)

var (
	// ErrEmptyAudio is returned for zero-length input.
	ErrEmptyAudio = errors.New("transcribe: empty audio")
	// ErrTooLarge is returned when the input exceeds MaxAudioBytes.
	ErrTooLarge = errors.New("transcribe: audio too large")
	// ErrEmptyTranscript is returned when the service heard nothing.
	ErrEmptyTranscript = errors.New("transcribe: empty transcript")
)

// Config configures the Whisper client.
type Config struct {
	APIKey  string
	BaseURL string
	// Model defaults to whisper-1.
	Model string
	// Language is an optional ISO-639-1 hint such as "de".
	Language string
	// FileName is the upload name; its extension tells the service the
	// container format. Defaults to "voice.ogg".
	FileName   string
	Timeout    time.Duration
	HTTPClient *http.Client
	// TempDir is where audio is spooled. Defaults to os.TempDir().
	TempDir string
}

// Whisper is an OpenAI-compatible transcription client.
type Whisper struct {
	cfg    Config
	client *http.Client
}

// New returns a client for cfg.
func New(cfg Config) *Whisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.FileName == "" {
		cfg.FileName = "voice.ogg"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Whisper{cfg: cfg, client: client}
}

// Transcribe spools audio to a temporary file, uploads it and returns the
// recognised text. The temporary file is removed on every path.
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	path, size, err := spool(w.cfg.TempDir, filepath.Ext(w.cfg.FileName), audio)
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logx.Warn().Err(rmErr).Str("path", path).Msg("transcribe: could not remove spool file")
		}
	}()
	if size == 0 {
		return "", ErrEmptyAudio
	}

	body, contentType, err := w.multipart(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create http request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("transcribe: read response body: %w", err)
	}

	var out struct {
		Text  string `json:"text"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("transcribe: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("transcribe: API error (%s): %s", out.Error.Type, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: unexpected HTTP %d", resp.StatusCode)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (w *Whisper) multipart(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: open spool file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", w.cfg.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("transcribe: copy audio: %w", err)
	}
	fields := map[string]string{"model": w.cfg.Model, "response_format": "json"}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("transcribe: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("transcribe: close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// spool copies audio into a new temporary file and returns its path and
// size. On error no file is left behind.
func spool(dir, ext string, audio io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, "kaikei-voice-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("transcribe: create spool file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(audio, MaxAudioBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("transcribe: spool audio: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("transcribe: close spool file: %w", closeErr)
	case n > MaxAudioBytes:
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}
