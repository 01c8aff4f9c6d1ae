//go:build nolibopus

package voice

import "errors"

// ErrNoOpus is returned by NewOpusDecoder in builds without libopus. Audio
// packets are dropped and every session reports no audio.
var ErrNoOpus = errors.New("built with nolibopus: opus decoding unavailable")

func NewOpusDecoder() (Decoder, error) {
	return nil, ErrNoOpus
}
