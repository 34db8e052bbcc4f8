package bookings

import "testing"

func TestScoreTimeFrame(t *testing.T) {
	tests := []struct {
		timeFrame string
		want      int
	}{
		{"0-3-months", 10},
		{"3-6-months", 7},
		{"6-12-months", 5},
		{"exploring", 2},
		{"", 2},
		{"someday", 2},
	}
	for _, tt := range tests {
		if got := ScoreTimeFrame(tt.timeFrame); got != tt.want {
			t.Errorf("ScoreTimeFrame(%q) = %d, want %d", tt.timeFrame, got, tt.want)
		}
	}
}

func TestLabelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{10, "Hot"},
		{12, "Hot"},
		{7, "Warm"},
		{5, "Warm"},
		{2, "Cold"},
		{0, "Cold"},
	}
	for _, tt := range tests {
		if got := LabelForScore(tt.score); got != tt.want {
			t.Errorf("LabelForScore(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
