package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/discord-voice-wordtally/internal/tally"
	"github.com/discord-voice-wordtally/internal/words"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tally.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	in := []tally.Entry{
		{UserID: "2", Name: "bob", Words: []words.WordCount{{Word: "zebra", Count: 1}, {Word: "apple", Count: 4}}},
		{UserID: "1", Name: "alice", Words: []words.WordCount{{Word: "hello", Count: 2}, {Word: "world", Count: 1}}},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestSaveReplacesPreviousContents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, []tally.Entry{{UserID: "1", Name: "a", Words: []words.WordCount{{Word: "x", Count: 1}}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	want := []tally.Entry{{UserID: "3", Name: "c", Words: []words.WordCount{{Word: "y", Count: 2}}}}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.Load(ctx)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected replacement, got %+v", got)
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, []tally.Entry{{UserID: "1", Name: "a", Words: []words.WordCount{{Word: "x", Count: 1}}}})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty store, got %+v %v", got, err)
	}
}

func TestAggregatorRestoresFromStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	agg := tally.New(nil, nil, nil, s)
	agg.Add(ctx, []words.UserStats{{UserID: "1", Name: "alice", Stats: words.Analyze("hello hello world", nil)}})

	restored := tally.New(nil, nil, nil, s)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	board := restored.Preview()
	if len(board) != 1 || board[0].TotalWords != 3 || board[0].Name != "alice" {
		t.Fatalf("unexpected restored board %+v", board)
	}
}
