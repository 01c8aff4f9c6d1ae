package voice

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-wordtally/internal/session"
)

// byteDecoder emits one sample per payload byte so tests can predict the
// PCM produced.
type byteDecoder struct{}

func (byteDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) == 1 && data[0] == 0xff {
		return 0, errors.New("corrupt frame")
	}
	for i, b := range data {
		pcm[i] = int16(b)
	}
	return len(data), nil
}

func fakeDecoders() (Decoder, error) { return byteDecoder{}, nil }

type finalizeRecorder struct {
	mu    sync.Mutex
	calls [][]session.UserAudio
}

func (f *finalizeRecorder) fn(audio []session.UserAudio) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, audio)
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestCaptureGroupsAudioByUserInFirstHeardOrder(t *testing.T) {
	c := newCapture(fakeDecoders)
	c.mapSSRC(10, "alice")
	c.mapSSRC(20, "bob")
	c.mapSSRC(30, "alice")

	c.handlePacket(10, []byte{9}) // before start: dropped

	rec := &finalizeRecorder{}
	if err := c.start(rec.fn); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.handlePacket(20, []byte{1, 2})
	c.handlePacket(10, []byte{3})
	c.handlePacket(30, []byte{4})
	c.handlePacket(99, []byte{5}) // never mapped
	c.handlePacket(20, []byte{0xff})

	if err := c.stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected one finalize, got %d", len(rec.calls))
	}
	got := rec.calls[0]
	if len(got) != 2 || got[0].UserID != "bob" || got[1].UserID != "alice" {
		t.Fatalf("unexpected users %+v", got)
	}
	if s := samples(got[0].Audio); len(s) != 2 || s[0] != 1 || s[1] != 2 {
		t.Fatalf("unexpected bob samples %v", s)
	}
	if s := samples(got[1].Audio); len(s) != 2 || s[0] != 3 || s[1] != 4 {
		t.Fatalf("unexpected alice samples %v", s)
	}
}

func TestCaptureStartStopErrors(t *testing.T) {
	c := newCapture(fakeDecoders)
	if err := c.stop(); !errors.Is(err, ErrNotCapturing) || errors.Is(err, session.ErrCaptureEnded) {
		t.Fatalf("expected plain ErrNotCapturing, got %v", err)
	}
	rec := &finalizeRecorder{}
	_ = c.start(rec.fn)
	if err := c.start(rec.fn); !errors.Is(err, ErrCapturing) {
		t.Fatalf("expected ErrCapturing, got %v", err)
	}
	_ = c.stop()
	if err := c.stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("second stop must not finalize again, got %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("finalize ran %d times", len(rec.calls))
	}
}

func TestCaptureDecoderFailureDropsAudio(t *testing.T) {
	c := newCapture(func() (Decoder, error) { return nil, errors.New("no libopus") })
	c.mapSSRC(1, "alice")
	rec := &finalizeRecorder{}
	_ = c.start(rec.fn)
	c.handlePacket(1, []byte{1})
	_ = c.stop()
	if len(rec.calls[0]) != 0 {
		t.Fatalf("expected no audio, got %+v", rec.calls[0])
	}
}

// TestReaderDrainsOpusRecv feeds packets through the connection reader the
// same way discordgo delivers them.
func TestReaderDrainsOpusRecv(t *testing.T) {
	packets := make(chan *discordgo.Packet, 4)
	conn := newConnection(nil, newCapture(fakeDecoders))
	conn.cap.mapSSRC(42, "carol")
	rec := &finalizeRecorder{}
	if err := conn.StartCapture(rec.fn); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn.startReader(t.Context(), packets)

	packets <- nil
	packets <- &discordgo.Packet{SSRC: 42, Opus: []byte{7, 8}}
	close(packets)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.calls)
		rec.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("closing OpusRecv did not finalize the capture")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.calls[0]; len(got) != 1 || got[0].UserID != "carol" || len(got[0].Audio) != 4 {
		t.Fatalf("unexpected audio %+v", got)
	}
	if err := conn.StopCapture(); !errors.Is(err, session.ErrCaptureEnded) {
		t.Fatalf("stop after the link dropped should report ErrCaptureEnded, got %v", err)
	}
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestDisconnectStopsReader(t *testing.T) {
	conn := newConnection(nil, newCapture(fakeDecoders))
	conn.startReader(t.Context(), make(chan *discordgo.Packet))
	done := make(chan struct{})
	go func() {
		_ = conn.Disconnect()
		_ = conn.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect hung")
	}
}
