package voice

import (
	"encoding/binary"

	"github.com/discord-voice-wordtally/internal/logging"
)

// Decoder turns one Opus packet into PCM samples. Opus decoders carry state
// between packets, so each SSRC gets its own.
type Decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

type DecoderFactory func() (Decoder, error)

const (
	sampleRate = 48000
	channels   = 1
	// maxFrameSamples fits the longest Opus frame (120ms).
	maxFrameSamples = sampleRate * 120 / 1000
)

// decodeInto decodes payload with the stream's decoder and appends PCM16LE
// bytes to the stream buffer.
func (st *ssrcStream) decodeInto(payload []byte) {
	n, err := st.dec.Decode(payload, st.scratch)
	if err != nil {
		st.decodeErrs++
		if st.decodeErrs == 1 {
			logging.Debugw("opus decode error", "ssrc", st.ssrc, "err", err)
		}
		return
	}
	var b [2]byte
	for _, s := range st.scratch[:n] {
		binary.LittleEndian.PutUint16(b[:], uint16(s))
		st.pcm.Write(b[:])
	}
	st.frames++
}
