package grading

import (
	"time"

	"live-assessment-service/internal/domain"
)

// SpeedPolicy scales correct LIVE answers by how quickly they arrived:
// factor = max(Floor, 1 - elapsed/limit*Decay).
type SpeedPolicy struct {
	Enabled bool
	Floor   float64
	Decay   float64
}

// DefaultSpeedPolicy decays linearly from full to half credit over the limit.
func DefaultSpeedPolicy() SpeedPolicy {
	return SpeedPolicy{Enabled: true, Floor: 0.5, Decay: 0.5}
}

// Factor returns the multiplier in [Floor, 1]. Untimed questions get 1.
func (p SpeedPolicy) Factor(elapsed, limit time.Duration) float64 {
	if !p.Enabled || limit <= 0 {
		return 1
	}
	if elapsed < 0 {
		elapsed = 0
	}
	factor := 1 - (float64(elapsed)/float64(limit))*p.Decay
	if factor < p.Floor {
		factor = p.Floor
	}
	if factor > 1 {
		factor = 1
	}
	return factor
}

// ApplySpeed scales the score of a correct verdict. Incorrect and pending
// verdicts are returned unchanged.
func ApplySpeed(v domain.Verdict, factor float64) domain.Verdict {
	if v.IsCorrect == nil || !*v.IsCorrect {
		return v
	}
	v.Score = domain.RoundScore(v.Score * factor)
	return v
}
