package bookings

// Purchase time-frame buckets. "exploring" is the canonical spelling for the
// no-horizon bucket.
const (
	TimeFrameSoon      = "0-3-months"
	TimeFrameMid       = "3-6-months"
	TimeFrameLate      = "6-12-months"
	TimeFrameExploring = "exploring"
)

// Lead labels derived from the numeric score.
const (
	LeadHot  = "Hot"
	LeadWarm = "Warm"
	LeadCold = "Cold"
)

// ScoreTimeFrame maps a purchase time frame to its numeric lead score.
// A nearer horizon scores higher. Unknown buckets score like "exploring".
func ScoreTimeFrame(timeFrame string) int {
	switch timeFrame {
	case TimeFrameSoon:
		return 10
	case TimeFrameMid:
		return 7
	case TimeFrameLate:
		return 5
	default:
		return 2
	}
}

// LabelForScore maps a numeric lead score to its three-level label.
func LabelForScore(score int) string {
	switch {
	case score >= 10:
		return LeadHot
	case score >= 5:
		return LeadWarm
	default:
		return LeadCold
	}
}
