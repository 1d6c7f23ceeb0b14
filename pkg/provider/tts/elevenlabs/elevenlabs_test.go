package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/types"
	"github.com/coder/websocket"
)

// fakeStream is a stream-input server that records every text message and
// answers the flush with the configured audio.
type fakeStream struct {
	mu      sync.Mutex
	texts   []string
	path    string
	query   string
	apiKey  string
	audio   [][]byte
	failure string
}

func (f *fakeStream) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	f.mu.Lock()
	f.path = r.URL.Path
	f.query = r.URL.RawQuery
	f.apiKey = r.Header.Get("xi-api-key")
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg textMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		f.mu.Lock()
		f.texts = append(f.texts, msg.Text)
		f.mu.Unlock()
		if msg.Text == "" {
			break
		}
	}
	if f.failure != "" {
		send(ctx, conn, audioResponse{Error: f.failure, Message: "quota"})
		return
	}
	for _, chunk := range f.audio {
		send(ctx, conn, audioResponse{Audio: base64.StdEncoding.EncodeToString(chunk)})
	}
	send(ctx, conn, audioResponse{IsFinal: true})
	<-conn.CloseRead(ctx).Done()
}

func send(ctx context.Context, conn *websocket.Conn, v audioResponse) {
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func startFake(t *testing.T, f *fakeStream) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	p, err := New("secret", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	f := &fakeStream{audio: [][]byte{{1, 0, 2, 0}, {3, 0}}}
	p := startFake(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clip, err := tts.Synthesize(ctx, p, "Good morning!", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != string([]byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("pcm = %v", clip.Data)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("clip format = %d Hz %d ch, want 16000 Hz mono", clip.SampleRate, clip.Channels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	want := []string{" ", "Good morning! ", ""}
	if strings.Join(f.texts, "|") != strings.Join(want, "|") {
		t.Errorf("texts = %q, want %q", f.texts, want)
	}
	if f.path != "/v1/text-to-speech/"+DefaultVoiceID+"/stream-input" {
		t.Errorf("path = %q", f.path)
	}
	if !strings.Contains(f.query, "output_format=pcm_16000") || !strings.Contains(f.query, "model_id=eleven_flash_v2_5") {
		t.Errorf("query = %q", f.query)
	}
	if f.apiKey != "secret" {
		t.Errorf("xi-api-key = %q, want secret", f.apiKey)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	p := startFake(t, &fakeStream{failure: "quota_exceeded"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := tts.Synthesize(ctx, p, "Hello", types.VoiceProfile{ID: "v1"})
	if !errors.Is(err, tts.ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestSynthesizeStream_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	text := make(chan string)
	close(text)
	if _, err := p.SynthesizeStream(context.Background(), text, types.VoiceProfile{ID: "v"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"abc123","name":"Rachel","category":"premade","labels":{"gender":"female"}},
			{"voice_id":"x1","name":"Ghost","category":"","labels":null}
		]}`))
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL+"/"))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(voices))
	}
	if v := voices[0]; v.ID != "abc123" || v.Name != "Rachel" || v.Provider != "elevenlabs" ||
		v.Metadata["gender"] != "female" || v.Metadata["category"] != "premade" {
		t.Errorf("voices[0] = %+v", v)
	}
	if _, ok := voices[1].Metadata["category"]; ok {
		t.Error("empty category should not appear in metadata")
	}
}

func TestListVoices_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	if _, err := p.ListVoices(context.Background()); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		key      string
		opts     []Option
		wantRate int
		wantErr  bool
	}{
		{name: "empty key", key: "", wantErr: true},
		{name: "defaults", key: "k", wantRate: 16000},
		{name: "24k", key: "k", opts: []Option{WithOutputFormat("pcm_24000")}, wantRate: 24000},
		{name: "mp3 rejected", key: "k", opts: []Option{WithOutputFormat("mp3_44100_128")}, wantErr: true},
		{name: "bad rate", key: "k", opts: []Option{WithOutputFormat("pcm_x")}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.key, tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.SampleRate() != tc.wantRate {
				t.Errorf("SampleRate = %d, want %d", p.SampleRate(), tc.wantRate)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()
	p, _ := New("k", WithModel("eleven_multilingual_v2"), WithBaseURL("https://example.test/"))
	got := p.streamURL("voice id")
	want := "https://example.test/v1/text-to-speech/voice%20id/stream-input?model_id=eleven_multilingual_v2&output_format=pcm_16000"
	if got != want {
		t.Errorf("streamURL = %q, want %q", got, want)
	}
}
