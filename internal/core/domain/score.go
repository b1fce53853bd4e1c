package domain

// NormalizeScore maps a raw index distance to a bounded confidence in [0,1].
// score = 1/(1+d) is monotonically non-increasing in d; distance 0 maps to 1.
// Negative distances are clamped to zero so a misbehaving index can never
// invert the ordering.
func NormalizeScore(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	score := 1.0 / (1.0 + distance)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
