// Package whisper provides whisper.cpp-backed speech recognition engines.
//
// Two engines are available:
//
//   - [NativeEngine] links whisper.cpp through its CGO bindings and runs
//     inference in-process.
//   - [ServerEngine] talks to a running whisper-server binary over its REST
//     API (POST /inference) for deployments built without CGO.
//
// Both take 16 kHz mono float32 audio; wrap them in an [stt.Adapter] to accept
// other rates.
//
// Usage:
//
//	eng, err := whisper.NewServer("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := stt.NewAdapter(eng).Transcribe(ctx, audio.Frame{Samples: segment, SampleRate: 48000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultThreads  = 8
	engineRate      = 16000 // whisper.cpp only accepts 16 kHz mono
)

// Compile-time assertion that ServerEngine implements stt.Engine.
var _ stt.Engine = (*ServerEngine)(nil)

// Option is a functional option for configuring a ServerEngine.
type Option func(*ServerEngine)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(e *ServerEngine) { e.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *ServerEngine) { e.language = lang }
}

// WithTimeout sets the HTTP client timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *ServerEngine) { e.httpClient.Timeout = d }
}

// ServerEngine implements stt.Engine backed by a whisper.cpp HTTP server.
type ServerEngine struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// NewServer returns an engine that posts to the whisper.cpp server at
// serverURL (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) (*ServerEngine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	e := &ServerEngine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// SampleRate returns 16000.
func (e *ServerEngine) SampleRate() int { return engineRate }

// Infer encodes samples as a 16-bit WAV file and POSTs it to /inference as
// multipart/form-data.
func (e *ServerEngine) Infer(ctx context.Context, samples []float32, prompt string) (string, error) {
	wav := audio.EncodeWAV(audio.Clip{
		Data:       audio.Int16ToPCM16(audio.Float32ToInt16(samples)),
		SampleRate: engineRate,
		Channels:   1,
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        e.language,
		"model":           e.model,
		"prompt":          prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
