package vuln

// Severity tiers over a 0-10 impact scale and their weights in
// [WeightedMean]. Higher tiers dominate the weighted average.
const (
	criticalThreshold = 9.0
	highThreshold     = 7.0
	mediumThreshold   = 4.0

	criticalWeight = 4.0
	highWeight     = 3.0
	mediumWeight   = 2.0
	lowWeight      = 1.0
)

// Tier names the severity band of an impact score.
func Tier(score float64) string {
	switch {
	case score >= criticalThreshold:
		return "CRITICAL"
	case score >= highThreshold:
		return "HIGH"
	case score >= mediumThreshold:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func tierWeight(score float64) float64 {
	switch Tier(score) {
	case "CRITICAL":
		return criticalWeight
	case "HIGH":
		return highWeight
	case "MEDIUM":
		return mediumWeight
	}
	return lowWeight
}

// Mean is the arithmetic mean of impacts, or 0 when empty.
func Mean(impacts []float64) float64 {
	if len(impacts) == 0 {
		return 0
	}
	var sum float64
	for _, s := range impacts {
		sum += s
	}
	return sum / float64(len(impacts))
}

// WeightedMean averages impacts weighted by severity tier, or 0 when empty.
func WeightedMean(impacts []float64) float64 {
	if len(impacts) == 0 {
		return 0
	}
	var sum, weights float64
	for _, s := range impacts {
		w := tierWeight(s)
		sum += w * s
		weights += w
	}
	return sum / weights
}
