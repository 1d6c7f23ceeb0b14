package turn

import (
	"errors"

	"github.com/MrWong99/matin/pkg/audio"
	"github.com/MrWong99/matin/pkg/provider/stt"
)

// ErrExternalService is returned by [Engine.Run] when the reasoning service,
// speech synthesis or recognition failed mid-session. The session has already
// been ended gracefully: quit was signalled and the end-of-session cue played.
var ErrExternalService = errors.New("turn: external service failed")

// errMissing reports a required [Config] field that was left nil.
type errMissing string

func (e errMissing) Error() string { return "turn: config: " + string(e) + " is required" }

// malformed reports whether err means the segment itself was unusable. Such
// segments are skipped and capture resumes.
func malformed(err error) bool {
	var mf *audio.MalformedFrameError
	return errors.Is(err, stt.ErrNotMono) || errors.As(err, &mf)
}
