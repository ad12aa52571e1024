package tracker

import "testing"

func TestCompletionEstimate(t *testing.T) {
	tests := []struct {
		name      string
		item      Item
		dailyGoal int
		wantDays  int
		wantLabel string
	}{
		{
			name:      "no chunks",
			item:      Item{},
			dailyGoal: 30,
			wantDays:  -1,
			wantLabel: "n/a",
		},
		{
			name:      "no goal",
			item:      Item{TotalChunks: 6, ChunkSizeMinutes: 5},
			dailyGoal: 0,
			wantDays:  -1,
			wantLabel: "n/a",
		},
		{
			name:      "already complete",
			item:      Item{TotalChunks: 6, CompletedChunks: 6, ChunkSizeMinutes: 5},
			dailyGoal: 30,
			wantDays:  0,
			wantLabel: "done",
		},
		{
			name:      "finishes today",
			item:      Item{TotalChunks: 6, CompletedChunks: 2, ChunkSizeMinutes: 5},
			dailyGoal: 30,
			wantDays:  1,
			wantLabel: "today",
		},
		{
			name:      "several days",
			item:      Item{TotalChunks: 24, CompletedChunks: 0, ChunkSizeMinutes: 5},
			dailyGoal: 30,
			wantDays:  4,
			wantLabel: "4 days",
		},
		{
			name:      "rounds up",
			item:      Item{TotalChunks: 7, CompletedChunks: 0, ChunkSizeMinutes: 5},
			dailyGoal: 30,
			wantDays:  2,
			wantLabel: "2 days",
		},
		{
			name:      "a while",
			item:      Item{TotalChunks: 10000, CompletedChunks: 0, ChunkSizeMinutes: 5},
			dailyGoal: 5,
			wantDays:  10000,
			wantLabel: "a while",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompletionEstimate(tt.item, tt.dailyGoal)
			if got.Days != tt.wantDays {
				t.Fatalf("Days = %d, want %d", got.Days, tt.wantDays)
			}
			if got.Label != tt.wantLabel {
				t.Fatalf("Label = %q, want %q", got.Label, tt.wantLabel)
			}
		})
	}
}
