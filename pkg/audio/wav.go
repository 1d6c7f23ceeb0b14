package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrNotWAV is returned by [ParseWAV] for data that is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// ParseWAV decodes a 16-bit PCM WAV file into a [Clip]. Chunks other than
// "fmt " and "data" are skipped.
func ParseWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}
	var (
		clip    Clip
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return Clip{}, errors.New("audio: wav fmt chunk truncated")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE; the sub-format is assumed PCM.
			if (format != 1 && format != 0xFFFE) || bits != 16 {
				return Clip{}, fmt.Errorf("audio: unsupported wav encoding (format %d, %d bits)", format, bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, errors.New("audio: wav data chunk before fmt chunk")
			}
			end := min(body+size, len(data))
			clip.Data = data[body:end]
			if len(clip.Data)%2 != 0 {
				clip.Data = clip.Data[:len(clip.Data)-1]
			}
			return clip, nil
		}
		off = body + size
		if size%2 != 0 {
			off++
		}
	}
	return Clip{}, errors.New("audio: wav missing data chunk")
}

// LoadWAV reads and parses the WAV file at path.
func LoadWAV(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: load wav: %w", err)
	}
	clip, err := ParseWAV(data)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: load wav %q: %w", path, err)
	}
	return clip, nil
}

// EncodeWAV wraps a clip in a canonical 44-byte RIFF header.
func EncodeWAV(clip Clip) []byte {
	const headerLen = 44
	buf := make([]byte, headerLen+len(clip.Data))
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+len(clip.Data)))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], uint16(clip.Channels))
	binary.LittleEndian.PutUint32(buf[24:], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(clip.SampleRate*clip.Channels*2))
	binary.LittleEndian.PutUint16(buf[32:], uint16(clip.Channels*2))
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(len(clip.Data)))
	copy(buf[headerLen:], clip.Data)
	return buf
}
