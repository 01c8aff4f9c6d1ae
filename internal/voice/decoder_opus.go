//go:build !nolibopus

package voice

import "github.com/hraban/opus"

// NewOpusDecoder returns a libopus decoder for 48kHz mono.
func NewOpusDecoder() (Decoder, error) {
	return opus.NewDecoder(sampleRate, channels)
}
