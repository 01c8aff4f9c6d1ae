package tally

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/words"
)

type fakeDest struct {
	channel string
}

func (f *fakeDest) ForLeaderboard() (string, error) {
	if f.channel == "" {
		return "", report.ErrDestinationUnavailable
	}
	return f.channel, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakePublisher) Publish(channelID string, msgs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{channelID}, msgs...))
	return nil
}

func session(id, name, text string) []words.UserStats {
	return []words.UserStats{{UserID: id, Name: name, Stats: words.Analyze(text, nil)}}
}

func TestDailyAccumulation(t *testing.T) {
	pub := &fakePublisher{}
	agg := New(nil, &fakeDest{channel: "c1"}, pub, nil)
	ctx := context.Background()

	agg.Add(ctx, session("u", "User", "hello"))
	agg.Add(ctx, session("u", "User", "hello world"))

	board := agg.Preview()
	if len(board) != 1 || board[0].TotalWords != 3 {
		t.Fatalf("unexpected board %+v", board)
	}
	if board[0].Counts.Count("hello") != 2 || board[0].Counts.Count("world") != 1 {
		t.Fatalf("unexpected counts %+v", board[0].Counts.Entries())
	}

	if err := agg.Emit(ctx); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if agg.Len() != 0 {
		t.Fatalf("tally should be empty after emission")
	}
	if len(pub.calls) != 1 || pub.calls[0][0] != "c1" {
		t.Fatalf("unexpected publish calls %v", pub.calls)
	}
	want := report.Leaderboard.Header + "**User** *(3 words)*\n┗ Top words: hello (2), world (1)\n\n"
	if pub.calls[0][1] != want {
		t.Fatalf("leaderboard mismatch:\n got %q\nwant %q", pub.calls[0][1], want)
	}
}

func TestEmitWithoutDestinationKeepsTally(t *testing.T) {
	pub := &fakePublisher{}
	agg := New(nil, &fakeDest{}, pub, nil)
	ctx := context.Background()
	agg.Add(ctx, session("u", "User", "keep me"))

	if err := agg.Emit(ctx); err == nil {
		t.Fatalf("expected destination error")
	}
	if agg.Len() != 1 || agg.Preview()[0].TotalWords != 2 {
		t.Fatalf("tally changed without destination")
	}
	if len(pub.calls) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestEmitEmptyIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	agg := New(nil, &fakeDest{channel: "c1"}, pub, nil)
	if err := agg.Emit(context.Background()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("empty tally must not publish")
	}
}

func TestZeroWordUsersAreNotTallied(t *testing.T) {
	agg := New(nil, &fakeDest{channel: "c1"}, &fakePublisher{}, nil)
	agg.Add(context.Background(), []words.UserStats{{UserID: "quiet", Name: "Quiet"}})
	if agg.Len() != 0 {
		t.Fatalf("zero-word user should be skipped")
	}
}

func TestLeaderboardOrderAndFlagged(t *testing.T) {
	pub := &fakePublisher{}
	flagged := words.NewFlaggedSet([]string{"damn"})
	agg := New(flagged, &fakeDest{channel: "c1"}, pub, nil)
	ctx := context.Background()
	agg.Add(ctx, session("a", "Ann", "one"))
	agg.Add(ctx, session("b", "Ben", "damn that was a long one"))
	agg.Add(ctx, session("a", "Annie", "two"))

	if err := agg.Emit(ctx); err != nil {
		t.Fatalf("emit: %v", err)
	}
	msgs := pub.calls[0][1:]
	if len(msgs) != 2 {
		t.Fatalf("expected main and flagged report, got %d messages", len(msgs))
	}
	if strings.Index(msgs[0], "**Ben**") > strings.Index(msgs[0], "**Annie**") {
		t.Fatalf("expected Ben first:\n%s", msgs[0])
	}
	if !strings.Contains(msgs[1], "**Ben** *(1 flagged)*: damn (1)") {
		t.Fatalf("unexpected flagged report %q", msgs[1])
	}
}

func TestConcurrentAddAndEmit(t *testing.T) {
	pub := &fakePublisher{}
	agg := New(nil, &fakeDest{channel: "c1"}, pub, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			agg.Add(ctx, session("u", "User", "word"))
		}()
		go func() {
			defer wg.Done()
			_ = agg.Emit(ctx)
		}()
	}
	wg.Wait()
	_ = agg.Emit(ctx)

	total := 0
	for _, call := range pub.calls {
		// "**User** *(N words)*"
		var n int
		if i := strings.Index(call[1], "*("); i >= 0 {
			_, _ = fmt.Sscanf(call[1][i+2:], "%d", &n)
		}
		total += n
	}
	if total != 20 {
		t.Fatalf("expected 20 words emitted across leaderboards, got %d", total)
	}
}

func TestScheduleNext(t *testing.T) {
	s := Schedule{Hour: 0, Minute: 0, Location: time.UTC}
	now := time.Date(2024, 12, 24, 23, 59, 0, 0, time.UTC)
	if got := s.Next(now); !got.Equal(time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next %v", got)
	}
	exact := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	if got := s.Next(exact); !got.Equal(time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("boundary should roll to next day, got %v", got)
	}

	evening := Schedule{Hour: 18, Minute: 30}
	if got := evening.Next(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)); got.Hour() != 18 || got.Day() != 1 {
		t.Fatalf("expected same-day 18:30, got %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	agg := New(nil, &fakeDest{channel: "c1"}, &fakePublisher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, Schedule{Location: time.UTC})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
