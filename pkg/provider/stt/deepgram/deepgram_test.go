package deepgram_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/matin/pkg/provider/stt/deepgram"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := deepgram.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestInfer(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" brushed my teeth ","confidence":0.93}]}]}}`))
	}))
	defer srv.Close()

	e, err := deepgram.New("secret",
		deepgram.WithEndpoint(srv.URL+"/v1/listen"),
		deepgram.WithModel("base"),
		deepgram.WithLanguage("de"),
		deepgram.WithKeywords([]string{"stretch", "journal"}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := e.Infer(context.Background(), make([]float32, 160), "ignored")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got != "brushed my teeth" {
		t.Errorf("text = %q", got)
	}
	if gotAuth != "Token secret" || gotType != "audio/wav" {
		t.Errorf("headers: auth=%q type=%q", gotAuth, gotType)
	}
	if gotQuery["model"][0] != "base" || gotQuery["language"][0] != "de" {
		t.Errorf("query = %v", gotQuery)
	}
	if kw := gotQuery["keywords"]; len(kw) != 2 || kw[0] != "stretch:2" {
		t.Errorf("keywords = %v", kw)
	}
}

func TestInfer_NoAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	e, _ := deepgram.New("k", deepgram.WithEndpoint(srv.URL))
	got, err := e.Infer(context.Background(), nil, "")
	if err != nil || got != "" {
		t.Errorf("Infer = (%q, %v), want empty", got, err)
	}
}

func TestInfer_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, _ := deepgram.New("k", deepgram.WithEndpoint(srv.URL))
	if _, err := e.Infer(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}
