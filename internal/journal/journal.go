// Package journal keeps a voice diary of what the user said: each captured
// segment is encoded as Opus and written to its own file.
//
// A file is a sequence of packets, each prefixed with its length as a
// big-endian uint32. Packets are 20 ms of 48 kHz mono audio.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"layeh.com/gopus"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/audio/resample"
)

const (
	SampleRate = 48000
	frameMs    = 20
	// FrameSize is the number of samples in one packet.
	FrameSize = SampleRate * frameMs / 1000

	maxPacket = 4000
	ext       = ".opus"
)

// Journal writes segments under a directory. It is not safe for concurrent
// use; the turn engine hands over one segment at a time.
type Journal struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", dir, err)
	}
	return &Journal{dir: dir}, nil
}

// Path returns the file a segment is written to.
func (j *Journal) Path(sessionID string, seq int) string {
	return filepath.Join(j.dir, fmt.Sprintf("%s-%03d%s", sessionID, seq, ext))
}

// Record encodes mono samples at rate and writes them to [Journal.Path].
// The last frame is padded with silence.
func (j *Journal) Record(sessionID string, seq int, samples []float32, rate int) (string, error) {
	if rate != SampleRate {
		var err error
		if samples, err = resample.Resample(samples, rate, SampleRate); err != nil {
			return "", fmt.Errorf("journal: %w", err)
		}
	}
	enc, err := gopus.NewEncoder(SampleRate, 1, gopus.Voip)
	if err != nil {
		return "", fmt.Errorf("journal: create opus encoder: %w", err)
	}

	path := j.Path(sessionID, seq)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("journal: %w", err)
	}
	w := bufio.NewWriter(f)

	pcm := audio.Float32ToInt16(samples)
	frame := make([]int16, FrameSize)
	for off := 0; off < len(pcm); off += FrameSize {
		n := copy(frame, pcm[off:])
		clear(frame[n:])
		packet, err := enc.Encode(frame, FrameSize, maxPacket)
		if err != nil {
			_ = f.Close()
			return "", fmt.Errorf("journal: opus encode: %w", err)
		}
		if err := writePacket(w, packet); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("journal: write %s: %w", path, err)
		}
	}
	if err := errors.Join(w.Flush(), f.Close()); err != nil {
		return "", fmt.Errorf("journal: write %s: %w", path, err)
	}
	return path, nil
}

func writePacket(w io.Writer, p []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// ReadPackets returns the Opus packets stored in r.
func ReadPackets(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var out [][]byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("journal: read header: %w", err)
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 || n > maxPacket {
			return nil, fmt.Errorf("journal: bad packet length %d", n)
		}
		p := make([]byte, n)
		if _, err := io.ReadFull(br, p); err != nil {
			return nil, fmt.Errorf("journal: read packet: %w", err)
		}
		out = append(out, p)
	}
}

// Decode reads a journal file back into 48 kHz mono samples.
func Decode(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer f.Close()

	packets, err := ReadPackets(f)
	if err != nil {
		return nil, err
	}
	dec, err := gopus.NewDecoder(SampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("journal: create opus decoder: %w", err)
	}
	out := make([]float32, 0, len(packets)*FrameSize)
	for _, p := range packets {
		pcm, err := dec.Decode(p, FrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("journal: opus decode: %w", err)
		}
		out = append(out, audio.Int16ToFloat32(pcm)...)
	}
	return out, nil
}
