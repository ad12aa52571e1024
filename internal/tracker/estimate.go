package tracker

import "fmt"

// Estimate is the derived time-to-completion at the user's daily goal.
// Days is -1 when no estimate can be computed.
type Estimate struct {
	Days  int    `json:"days"`
	Label string `json:"label"`
}

// CompletionEstimate computes how many days of watching at dailyGoalMinutes
// per day remain for an item.
func CompletionEstimate(item Item, dailyGoalMinutes int) Estimate {
	if item.TotalChunks <= 0 || dailyGoalMinutes <= 0 {
		return Estimate{Days: -1, Label: "n/a"}
	}

	remaining := item.TotalChunks - item.CompletedChunks
	if remaining <= 0 {
		return Estimate{Days: 0, Label: "done"}
	}

	chunkSize := item.ChunkSizeMinutes
	if chunkSize <= 0 {
		chunkSize = fallbackChunkSizeMinutes
	}

	remainingMinutes := remaining * chunkSize
	days := (remainingMinutes + dailyGoalMinutes - 1) / dailyGoalMinutes
	switch {
	case days <= 1:
		return Estimate{Days: 1, Label: "today"}
	case days >= 1000:
		return Estimate{Days: days, Label: "a while"}
	default:
		return Estimate{Days: days, Label: fmt.Sprintf("%d days", days)}
	}
}
