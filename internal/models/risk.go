package models

import "time"

// RiskLevel classifies a computed risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevelForScore maps an additive risk score to a level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskFactor is one contributing rule that fired during analysis.
type RiskFactor struct {
	Reason string `json:"reason"`
	Weight int    `json:"weight"`
}

// RiskAssessment is a derived signal recomputed on demand from the attempt
// ledger and audit log. It is never the source of truth for account status.
type RiskAssessment struct {
	Identity   string       `json:"identity"`
	Score      int          `json:"score"`
	Level      RiskLevel    `json:"level"`
	Factors    []RiskFactor `json:"factors"`
	Suspicious bool         `json:"suspicious"`
	Origins    []string     `json:"origins"`
	ComputedAt time.Time    `json:"computed_at"`
}
