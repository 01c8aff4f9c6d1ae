// Package tally accumulates word counts per user across sessions and emits a
// leaderboard on a daily schedule.
package tally

import (
	"context"
	"sort"
	"sync"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/words"
)

// Entry is one user's accumulated counts.
type Entry struct {
	UserID string
	Name   string
	Words  []words.WordCount
}

// Store persists the tally between restarts.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Clear(ctx context.Context) error
}

// Destination resolves the leaderboard channel.
type Destination interface {
	ForLeaderboard() (string, error)
}

// Publisher delivers a message sequence atomically.
type Publisher interface {
	Publish(channelID string, msgs ...string) error
}

type entry struct {
	name   string
	counts *words.Frequency
}

// Aggregator owns the daily tally. All mutation happens under mu, including
// the read-and-clear done by Emit.
type Aggregator struct {
	flagged words.FlaggedSet
	dest    Destination
	pub     Publisher
	store   Store

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func New(flagged words.FlaggedSet, dest Destination, pub Publisher, store Store) *Aggregator {
	return &Aggregator{
		flagged: flagged,
		dest:    dest,
		pub:     pub,
		store:   store,
		entries: make(map[string]*entry),
	}
}

// Restore loads a previously saved tally. Existing entries are merged.
func (a *Aggregator) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	saved, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range saved {
		f := words.NewFrequency()
		for _, wc := range e.Words {
			f.Add(wc.Word, wc.Count)
		}
		a.addLocked(e.UserID, e.Name, f)
	}
	logging.Infow("restored daily tally", "users", len(saved))
	return nil
}

// Add merges finished session stats into the tally. Users with no words are
// skipped.
func (a *Aggregator) Add(ctx context.Context, stats []words.UserStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := false
	for _, st := range stats {
		if st.TotalWords == 0 || st.Counts == nil {
			continue
		}
		a.addLocked(st.UserID, st.Name, st.Counts)
		changed = true
	}
	if changed {
		a.persistLocked(ctx)
	}
}

func (a *Aggregator) addLocked(userID, name string, counts *words.Frequency) {
	e, ok := a.entries[userID]
	if !ok {
		e = &entry{counts: words.NewFrequency()}
		a.entries[userID] = e
		a.order = append(a.order, userID)
	}
	if name != "" {
		e.name = name
	}
	e.counts.Merge(counts)
}

func (a *Aggregator) persistLocked(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.store.Save(ctx, a.snapshotLocked()); err != nil {
		logging.Warnw("failed to persist daily tally", "err", err)
	}
}

func (a *Aggregator) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(a.order))
	for _, id := range a.order {
		e := a.entries[id]
		out = append(out, Entry{UserID: id, Name: e.name, Words: e.counts.Entries()})
	}
	return out
}

func (a *Aggregator) resetLocked(ctx context.Context) {
	a.entries = make(map[string]*entry)
	a.order = nil
	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			logging.Warnw("failed to clear persisted tally", "err", err)
		}
	}
}

// Len is the number of users in the tally.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Preview returns the current leaderboard without clearing it.
func (a *Aggregator) Preview() []words.UserStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rankLocked()
}

// rankLocked derives stats for every user, most words first.
func (a *Aggregator) rankLocked() []words.UserStats {
	out := make([]words.UserStats, 0, len(a.order))
	for _, id := range a.order {
		e := a.entries[id]
		name := e.name
		if name == "" {
			name = id
		}
		out = append(out, words.UserStats{
			UserID: id,
			Name:   name,
			Stats:  words.Derive(e.counts.Clone(), a.flagged),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalWords > out[j].TotalWords })
	return out
}

// Emit publishes the leaderboard and clears the tally. An empty tally is a
// no-op. When no destination can be resolved nothing is sent and the tally
// is kept.
func (a *Aggregator) Emit(ctx context.Context) error {
	a.mu.Lock()
	if len(a.order) == 0 {
		a.mu.Unlock()
		return nil
	}
	channelID, err := a.dest.ForLeaderboard()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	ranked := a.rankLocked()
	a.resetLocked(ctx)
	a.mu.Unlock()

	main, flagged, hasFlagged := report.Build(ranked, report.Leaderboard.Header, report.Leaderboard.TopLabel)
	msgs := []string{main}
	if hasFlagged {
		msgs = append(msgs, flagged)
	}
	logging.Infow("emitting daily leaderboard", "channel.id", channelID, "users", len(ranked))
	return a.pub.Publish(channelID, msgs...)
}
