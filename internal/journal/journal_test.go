package journal_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/matin/internal/journal"
)

func tone(n, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestRecordAndDecode(t *testing.T) {
	t.Parallel()
	j, err := journal.New(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name        string
		samples     int
		rate        int
		wantPackets int
	}{
		{name: "native rate", samples: journal.SampleRate, rate: journal.SampleRate, wantPackets: 50},
		{name: "partial frame padded", samples: journal.FrameSize + 10, rate: journal.SampleRate, wantPackets: 2},
		{name: "resampled from 16k", samples: 16000, rate: 16000, wantPackets: 50},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, err := j.Record("s1", i, tone(tc.samples, tc.rate), tc.rate)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if path != j.Path("s1", i) {
				t.Errorf("path = %s, want %s", path, j.Path("s1", i))
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			packets, err := journal.ReadPackets(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("ReadPackets: %v", err)
			}
			if len(packets) != tc.wantPackets {
				t.Errorf("packets = %d, want %d", len(packets), tc.wantPackets)
			}

			pcm, err := journal.Decode(path)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(pcm) != tc.wantPackets*journal.FrameSize {
				t.Errorf("decoded %d samples, want %d", len(pcm), tc.wantPackets*journal.FrameSize)
			}
		})
	}
}

func TestReadPackets_Corrupt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", []byte{0, 0}},
		{"zero length", []byte{0, 0, 0, 0}},
		{"oversized", []byte{0, 1, 0, 0}},
		{"truncated packet", []byte{0, 0, 0, 5, 1, 2}},
	}
	for _, tc := range tests {
		if _, err := journal.ReadPackets(bytes.NewReader(tc.data)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
	got, err := journal.ReadPackets(bytes.NewReader(nil))
	if err != nil || len(got) != 0 {
		t.Errorf("empty input = %v, %v", got, err)
	}
}
