package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/session"
)

var (
	ErrCapturing    = errors.New("capture already running")
	ErrNotCapturing = errors.New("no capture running")
)

// capture buffers decoded audio per SSRC between start and stop, and maps
// SSRCs to users from speaking updates. Packets that arrive while no capture
// is running are discarded.
type capture struct {
	newDecoder DecoderFactory

	mu    sync.Mutex
	users map[uint32]string
	run   *captureRun
	// handedOver is set once the current run's buffers were delivered.
	handedOver bool
}

func newCapture(f DecoderFactory) *capture {
	return &capture{newDecoder: f, users: make(map[uint32]string)}
}

// mapSSRC records which user owns an SSRC.
func (c *capture) mapSSRC(ssrc uint32, userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	prev := c.users[ssrc]
	c.users[ssrc] = userID
	c.mu.Unlock()
	if prev != userID {
		logging.Debugw("mapped SSRC to user", "ssrc", ssrc, "user.id", userID)
	}
}

func (c *capture) userFor(ssrc uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[ssrc]
}

func (c *capture) start(onFinalize func([]session.UserAudio)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return ErrCapturing
	}
	c.run = &captureRun{
		onFinalize: onFinalize,
		streams:    make(map[uint32]*ssrcStream),
		started:    time.Now(),
	}
	c.handedOver = false
	return nil
}

func (c *capture) handlePacket(ssrc uint32, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := c.run
	if run == nil || len(payload) == 0 {
		return
	}
	st, ok := run.streams[ssrc]
	if !ok {
		dec, err := c.newDecoder()
		if err != nil {
			run.dropped++
			if run.dropped == 1 {
				logging.Warnw("cannot create opus decoder, dropping audio", "ssrc", ssrc, "err", err)
			}
			return
		}
		st = &ssrcStream{ssrc: ssrc, dec: dec, scratch: make([]int16, maxFrameSamples)}
		run.streams[ssrc] = st
		run.order = append(run.order, ssrc)
	}
	st.decodeInto(payload)
}

// stop ends the running capture and delivers its buffers. Stopping a run
// that was already delivered wraps session.ErrCaptureEnded.
func (c *capture) stop() error {
	c.mu.Lock()
	run := c.run
	if run == nil {
		handedOver := c.handedOver
		c.mu.Unlock()
		if handedOver {
			return fmt.Errorf("%w: %w", session.ErrCaptureEnded, ErrNotCapturing)
		}
		return ErrNotCapturing
	}
	c.run = nil
	c.handedOver = true
	users := make(map[uint32]string, len(c.users))
	for k, v := range c.users {
		users[k] = v
	}
	c.mu.Unlock()
	audio := run.collect(users)
	logging.Infow("capture stopped", "users", len(audio), "streams", len(run.order), "duration", time.Since(run.started).String())
	run.onFinalize(audio)
	return nil
}

// collect merges streams into per-user audio in first-heard order. Streams
// whose SSRC never got a speaking update cannot be attributed and are
// dropped.
func (r *captureRun) collect(users map[uint32]string) []session.UserAudio {
	idx := make(map[string]int)
	var out []session.UserAudio
	for _, ssrc := range r.order {
		st := r.streams[ssrc]
		uid := users[ssrc]
		if uid == "" {
			logging.Warnw("dropping audio with unknown user", "ssrc", ssrc, "bytes", st.pcm.Len())
			continue
		}
		if st.decodeErrs > 0 {
			logging.Debugw("stream had decode errors", "ssrc", ssrc, "user.id", uid, "errors", st.decodeErrs, "frames", st.frames)
		}
		if i, ok := idx[uid]; ok {
			out[i].Audio = append(out[i].Audio, st.pcm.Bytes()...)
			continue
		}
		idx[uid] = len(out)
		out = append(out, session.UserAudio{UserID: uid, Audio: append([]byte(nil), st.pcm.Bytes()...)})
	}
	return out
}
