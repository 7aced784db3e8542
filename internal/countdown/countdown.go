// Package countdown computes the dungeon entry deadline from a server timestamp.
package countdown

import (
	"fmt"
	"time"

	"github.com/raidwatch/raidwatch/internal/event"
)

// EntryWindow is how long after the server timestamp entry stays open.
const EntryWindow = 10 * time.Minute

// Calculate returns the entry deadline for serverTs (unix seconds) as seen
// at now. RemainingSeconds goes negative once the deadline has passed, and
// DisplayTime always shows the absolute distance as MM:SS.
func Calculate(serverTs int64, now time.Time) event.EntryTime {
	targetTs := serverTs + int64(EntryWindow/time.Second)
	diff := targetTs - now.Unix()

	return event.EntryTime{
		TargetTs:         targetTs,
		RemainingSeconds: diff,
		DisplayTime:      FormatMMSS(diff),
		IsExpired:        diff <= 0,
	}
}

// CalculateEntryTime is Calculate against the wall clock.
func CalculateEntryTime(serverTs int64) event.EntryTime {
	return Calculate(serverTs, time.Now())
}

// Refresh re-evaluates a previously computed entry time at now.
func Refresh(info event.EntryTime, now time.Time) event.EntryTime {
	return Calculate(info.TargetTs-int64(EntryWindow/time.Second), now)
}

// FormatMMSS renders |seconds| as zero-padded minutes and seconds.
// Minutes are not wrapped into hours.
func FormatMMSS(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
