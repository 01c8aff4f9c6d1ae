package report

import "sync"

// Destinations resolves where reports go. A configured channel wins when it
// exists. Otherwise session reports go to the channel the session started in
// and the leaderboard goes to the channel of the most recent join.
type Destinations struct {
	configured string
	exists     func(string) bool

	mu       sync.Mutex
	lastJoin string
}

func NewDestinations(configured string, exists func(channelID string) bool) *Destinations {
	return &Destinations{configured: configured, exists: exists}
}

// Remember records the text channel a session was started from.
func (d *Destinations) Remember(channelID string) {
	if channelID == "" {
		return
	}
	d.mu.Lock()
	d.lastJoin = channelID
	d.mu.Unlock()
}

func (d *Destinations) resolvable(id string) bool {
	return id != "" && (d.exists == nil || d.exists(id))
}

// ForSession returns the channel for a session report.
func (d *Destinations) ForSession(sessionChannel string) string {
	if d.resolvable(d.configured) {
		return d.configured
	}
	return sessionChannel
}

// ForLeaderboard returns the leaderboard channel or ErrDestinationUnavailable.
func (d *Destinations) ForLeaderboard() (string, error) {
	if d.configured != "" {
		if d.resolvable(d.configured) {
			return d.configured, nil
		}
		return "", ErrDestinationUnavailable
	}
	d.mu.Lock()
	last := d.lastJoin
	d.mu.Unlock()
	if d.resolvable(last) {
		return last, nil
	}
	return "", ErrDestinationUnavailable
}
