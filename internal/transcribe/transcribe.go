// Package transcribe wraps a blocking speech-to-text engine with the
// silence and error policy used when a session is finalized.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine turns one user's audio into text segments. Audio is raw PCM16LE,
// 48kHz mono.
type Engine interface {
	Transcribe(ctx context.Context, audio []byte) ([]string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, audio []byte) ([]string, error)

func (f EngineFunc) Transcribe(ctx context.Context, audio []byte) ([]string, error) {
	return f(ctx, audio)
}

// EngineError is returned when the engine fails or times out. It is never
// retried.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string { return fmt.Sprintf("transcription engine: %v", e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// Adapter applies the minimum-size threshold before calling Engine and
// normalizes its output.
type Adapter struct {
	Engine Engine
	// MinBytes is the smallest buffer sent to the engine. Shorter buffers are
	// silence.
	MinBytes int
	// Timeout bounds a single engine call. Zero means no limit.
	Timeout time.Duration
}

// Audible reports whether audio is long enough to be sent to the engine.
func (a *Adapter) Audible(audio []byte) bool {
	return len(audio) > 0 && len(audio) >= a.MinBytes
}

// Transcribe returns the trimmed transcript and true, or "" and false when
// there is no speech. Buffers below MinBytes never reach the engine.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (string, bool, error) {
	if !a.Audible(audio) {
		return "", false, nil
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	segments, err := a.Engine.Transcribe(ctx, audio)
	if err != nil {
		return "", false, &EngineError{Err: err}
	}
	text := strings.TrimSpace(strings.Join(segments, " "))
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}
