package hydration

import "fmt"

type Tier int

const (
	TierImprove Tier = iota
	TierOnTrack
	TierGoalHit
)

func (t Tier) String() string {
	switch t {
	case TierImprove:
		return "improve"
	case TierOnTrack:
		return "on_track"
	case TierGoalHit:
		return "goal_hit"
	default:
		return "unknown"
	}
}

// TierFor buckets a percentage of the daily target. 80-94% has no message of
// its own and shares the on-track tier.
func TierFor(percentage float64) Tier {
	switch {
	case percentage >= 95:
		return TierGoalHit
	case percentage >= 50:
		return TierOnTrack
	default:
		return TierImprove
	}
}

func SummaryMessage(intake, target float64) string {
	tail := fmt.Sprintf("You drank %sl out of %sl today.", FormatLiters(intake), FormatLiters(target))
	switch TierFor(Percentage(Round2(intake), target)) {
	case TierGoalHit:
		return "Awesome! You hit your water goal today. Keep it up! " + tail
	case TierOnTrack:
		return "Good job! You're on the right track. Keep it up! " + tail
	default:
		return "You're doing great, but could drink more. Stay hydrated tomorrow! " + tail
	}
}

func ReminderMessage(quote string, share float64) string {
	return fmt.Sprintf("%s Don't forget to drink %sl.", quote, formatShare(share))
}

// formatShare keeps the short form users saw in SMS ("0.67", "1.5").
func formatShare(share float64) string {
	return fmt.Sprintf("%g", Round2(share))
}
