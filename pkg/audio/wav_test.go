package audio_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/matin/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	clip := audio.Clip{Data: audio.Int16ToPCM16([]int16{1, -2, 3, -4}), SampleRate: 22050, Channels: 2}
	got, err := audio.ParseWAV(audio.EncodeWAV(clip))
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 2 {
		t.Errorf("format = %d/%d, want 22050/2", got.SampleRate, got.Channels)
	}
	if string(got.Data) != string(clip.Data) {
		t.Errorf("data mismatch")
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	wav := audio.EncodeWAV(audio.Clip{Data: []byte{1, 0}, SampleRate: 8000, Channels: 1})
	// Splice a LIST chunk with an odd size (padded) between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	got, err := audio.ParseWAV(spliced)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if len(got.Data) != 2 || got.Data[0] != 1 {
		t.Errorf("data = %v, want [1 0]", got.Data)
	}
}

func TestParseWAV_Errors(t *testing.T) {
	if _, err := audio.ParseWAV([]byte("nope")); !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("short input: err = %v, want ErrNotWAV", err)
	}
	wav := audio.EncodeWAV(audio.Clip{Data: []byte{0, 0}, SampleRate: 8000, Channels: 1})
	wav[34] = 8 // bits per sample
	if _, err := audio.ParseWAV(wav); err == nil {
		t.Error("expected error for 8-bit wav")
	}
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cue.wav")
	clip := audio.Clip{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	if err := os.WriteFile(path, audio.EncodeWAV(clip), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := audio.LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if d := got.Duration().Milliseconds(); d != 100 {
		t.Errorf("duration = %dms, want 100ms", d)
	}
	if _, err := audio.LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
