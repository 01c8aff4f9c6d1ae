package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEngine struct {
	calls    int
	segments []string
	err      error
}

func (c *countingEngine) Transcribe(ctx context.Context, audio []byte) ([]string, error) {
	c.calls++
	return c.segments, c.err
}

func TestShortAudioNeverReachesEngine(t *testing.T) {
	eng := &countingEngine{segments: []string{"should not appear"}}
	a := &Adapter{Engine: eng, MinBytes: 1000}
	for _, n := range []int{0, 1, 999} {
		text, ok, err := a.Transcribe(context.Background(), make([]byte, n))
		if err != nil || ok || text != "" {
			t.Fatalf("len=%d: expected no speech, got %q ok=%v err=%v", n, text, ok, err)
		}
	}
	if eng.calls != 0 {
		t.Fatalf("engine called %d times for short audio", eng.calls)
	}
}

func TestJoinsAndTrimsSegments(t *testing.T) {
	eng := &countingEngine{segments: []string{" hi", "there "}}
	a := &Adapter{Engine: eng, MinBytes: 4}
	text, ok, err := a.Transcribe(context.Background(), make([]byte, 4))
	if err != nil || !ok {
		t.Fatalf("unexpected ok=%v err=%v", ok, err)
	}
	if text != "hi there" {
		t.Fatalf("expected %q, got %q", "hi there", text)
	}
	if eng.calls != 1 {
		t.Fatalf("expected one engine call, got %d", eng.calls)
	}
}

func TestBlankTranscriptIsNoSpeech(t *testing.T) {
	a := &Adapter{Engine: &countingEngine{segments: []string{"  ", ""}}}
	text, ok, err := a.Transcribe(context.Background(), []byte{1, 2})
	if err != nil || ok || text != "" {
		t.Fatalf("expected no speech, got %q ok=%v err=%v", text, ok, err)
	}
}

func TestEngineFailureIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	eng := &countingEngine{err: boom}
	a := &Adapter{Engine: eng}
	_, ok, err := a.Transcribe(context.Background(), []byte{1})
	var ee *EngineError
	if !errors.As(err, &ee) || !errors.Is(err, boom) || ok {
		t.Fatalf("expected EngineError wrapping boom, got %v", err)
	}
	if eng.calls != 1 {
		t.Fatalf("engine failures must not be retried, calls=%d", eng.calls)
	}
}

func TestTimeoutSurfacesAsEngineError(t *testing.T) {
	eng := EngineFunc(func(ctx context.Context, audio []byte) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	a := &Adapter{Engine: eng, Timeout: 10 * time.Millisecond}
	_, _, err := a.Transcribe(context.Background(), []byte{1})
	var ee *EngineError
	if !errors.As(err, &ee) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline EngineError, got %v", err)
	}
}

func TestAudible(t *testing.T) {
	a := &Adapter{MinBytes: 3}
	if a.Audible([]byte{1, 2}) || !a.Audible([]byte{1, 2, 3}) {
		t.Fatalf("threshold misapplied")
	}
	zero := &Adapter{}
	if zero.Audible(nil) {
		t.Fatalf("empty audio is never audible")
	}
}
