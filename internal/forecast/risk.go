package forecast

// RiskLevel is the ordinal risk classification attached to each forecast day.
type RiskLevel string

const (
	RiskLow        RiskLevel = "LOW"
	RiskMedium     RiskLevel = "MEDIUM"
	RiskMediumHigh RiskLevel = "MEDIUM-HIGH"
	RiskHigh       RiskLevel = "HIGH"
)

// RiskFromProbability maps the classifier's high-activity probability onto
// the ordinal scale. Pure threshold function, no hysteresis.
func RiskFromProbability(p float64) RiskLevel {
	switch {
	case p > 0.5:
		return RiskHigh
	case p > 0.3:
		return RiskMediumHigh
	case p > 0.15:
		return RiskMedium
	default:
		return RiskLow
	}
}
