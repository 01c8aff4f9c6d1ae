package report

import "sync/atomic"

type Mode int32

const (
	Normal Mode = iota
	Holiday
)

func (m Mode) String() string {
	if m == Holiday {
		return "holiday"
	}
	return "normal"
}

// ModeState is the process-wide report vocabulary switch. The zero value is
// Normal.
type ModeState struct {
	holiday atomic.Bool
}

// Toggle flips the mode and returns the new value.
func (s *ModeState) Toggle() Mode {
	for {
		old := s.holiday.Load()
		if s.holiday.CompareAndSwap(old, !old) {
			return modeOf(!old)
		}
	}
}

func (s *ModeState) Current() Mode { return modeOf(s.holiday.Load()) }

func modeOf(holiday bool) Mode {
	if holiday {
		return Holiday
	}
	return Normal
}

// Framing is the user-facing text that varies with the mode.
type Framing struct {
	Header    string
	TopLabel  string
	Status    string
	NoAudio   string
	JoinAck   string
	LeaveAck  string
	ToggleAck string
}

var framings = map[Mode]Framing{
	Normal: {
		Header:    "### Voice Chat Summary\n",
		TopLabel:  "Top words",
		Status:    "Recording finished. Processing audio...",
		NoAudio:   "No audio detected.",
		JoinAck:   "Joined! Now listening to all users in VC...",
		LeaveAck:  "Stopping and analyzing...",
		ToggleAck: "Holiday mode off.",
	},
	Holiday: {
		Header:    "### 🎁 Holiday Word Report 🎁\n",
		TopLabel:  "🎄 Top words",
		Status:    "🎄 *Ho ho ho! Let's see what everyone said...* 🎅",
		NoAudio:   "🦌 *The reindeer heard nothing!*",
		JoinAck:   "🎄 Ho ho ho! Listening...",
		LeaveAck:  "🎅 Wrapping up your gifts...",
		ToggleAck: "🎄 Holiday mode ON! Ho ho ho!",
	},
}

func FramingFor(m Mode) Framing { return framings[m] }

// Leaderboard framing does not follow the mode.
var Leaderboard = Framing{
	Header:   "### 📊 Daily Word Leaderboard\n",
	TopLabel: "Top words",
}
