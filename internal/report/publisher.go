package report

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/discord-voice-wordtally/internal/logging"
)

// MaxMessageLen is Discord's per-message character limit.
const MaxMessageLen = 2000

// ErrDestinationUnavailable means no report channel could be resolved.
var ErrDestinationUnavailable = errors.New("report destination unavailable")

// Sender delivers text to a channel.
type Sender interface {
	Send(channelID, text string) error
	ChannelExists(channelID string) bool
}

// Publisher sends message sequences so that no two sequences interleave.
type Publisher struct {
	sender Sender
	limit  int
	mu     sync.Mutex
}

func NewPublisher(s Sender) *Publisher {
	return &Publisher{sender: s, limit: MaxMessageLen}
}

// Publish sends msgs to channelID in order. Messages over the limit are
// split on line boundaries. Delivery failures are logged and the remaining
// messages are still sent; the first failure is returned.
func (p *Publisher) Publish(channelID string, msgs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, m := range msgs {
		for _, chunk := range splitMessage(m, p.limit) {
			if err := p.sender.Send(channelID, chunk); err != nil {
				logging.Warnw("failed to send report message", "channel.id", channelID, "err", err)
				if first == nil {
					first = err
				}
			}
		}
	}
	return first
}

func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := splitRunes(line, limit)
			out = append(out, head)
			line, n = rest, n-limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return out
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx], s[idx:]
		}
		i++
	}
	return s, ""
}
