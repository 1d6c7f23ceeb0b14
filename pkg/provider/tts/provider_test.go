package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/matin/pkg/provider/tts"
	"github.com/MrWong99/matin/pkg/provider/tts/mock"
	"github.com/MrWong99/matin/pkg/types"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Rate: 24000, Chunks: [][]byte{{1, 0}, {2, 0, 3}}}
	voice := types.VoiceProfile{ID: "v1"}

	clip, err := tts.Synthesize(context.Background(), p, "Well done!", voice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	// The odd trailing byte is dropped.
	if string(clip.Data) != string([]byte{1, 0, 2, 0}) {
		t.Errorf("data = %v", clip.Data)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz %d ch", clip.SampleRate, clip.Channels)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Text != "Well done!" || calls[0].Voice.ID != "v1" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tests := []struct {
		name string
		p    *mock.Provider
		want error
	}{
		{name: "start failure", p: &mock.Provider{Err: boom}, want: boom},
		{name: "empty stream", p: &mock.Provider{}, want: tts.ErrNoAudio},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tts.Synthesize(context.Background(), tc.p, "hi", types.VoiceProfile{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSynthesize_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &mock.Provider{Chunks: [][]byte{{1, 0}}}
	if _, err := tts.Synthesize(ctx, p, "hi", types.VoiceProfile{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
