package voice

import (
	"bytes"
	"time"

	"github.com/discord-voice-wordtally/internal/session"
)

// ssrcStream holds decoded PCM for one SSRC during a capture.
type ssrcStream struct {
	ssrc       uint32
	dec        Decoder
	scratch    []int16
	pcm        bytes.Buffer
	frames     int
	decodeErrs int
}

// captureRun is one StartCapture..StopCapture interval.
type captureRun struct {
	onFinalize func([]session.UserAudio)
	streams    map[uint32]*ssrcStream
	// order is the order SSRCs were first heard.
	order   []uint32
	started time.Time
	dropped int
}
