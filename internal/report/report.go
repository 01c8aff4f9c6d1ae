// Package report formats word statistics into chat messages and delivers
// them to channels.
package report

import (
	"fmt"
	"strings"

	"github.com/discord-voice-wordtally/internal/words"
)

const FlaggedHeader = "### ⚠️ Profanity & Slur Report\n"

// Build renders the main report for stats and, when any user said a flagged
// word, the flagged-term report. hasFlagged is false when no user has flagged
// words; flagged is then empty and must not be sent. Top words are rendered
// in the order given.
func Build(stats []words.UserStats, header, topLabel string) (main string, flagged string, hasFlagged bool) {
	var b strings.Builder
	b.WriteString(header)
	var flaggedLines []string

	for _, st := range stats {
		if st.TotalWords == 0 {
			fmt.Fprintf(&b, "**%s**: *(No speech detected)*\n\n", st.Name)
			continue
		}
		fmt.Fprintf(&b, "**%s** *(%d words)*\n┗ %s: %s\n\n", st.Name, st.TotalWords, topLabel, joinCounts(st.TopWords))

		if len(st.Flagged) > 0 {
			flaggedLines = append(flaggedLines,
				fmt.Sprintf("**%s** *(%d flagged)*: %s", st.Name, st.FlaggedTotal(), joinCounts(st.Flagged)))
		}
	}

	if len(flaggedLines) == 0 {
		return b.String(), "", false
	}
	return b.String(), FlaggedHeader + strings.Join(flaggedLines, "\n"), true
}

func joinCounts(wc []words.WordCount) string {
	parts := make([]string, 0, len(wc))
	for _, c := range wc {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Word, c.Count))
	}
	return strings.Join(parts, ", ")
}
