package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/matin/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeInfer_Silence(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t),
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeThreads(2),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	if e.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", e.SampleRate())
	}
	// One second of silence must not fail, whatever the model makes of it.
	if _, err := e.Infer(context.Background(), make([]float32, 16000), ""); err != nil {
		t.Fatalf("Infer: %v", err)
	}
}

func TestNativeInfer_CancelledContext(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Infer(ctx, make([]float32, 16000), ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
