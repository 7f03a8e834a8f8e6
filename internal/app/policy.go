package app

import (
	"time"

	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/grading"
)

// LeaderboardVisibility controls when HOMEWORK participants see the leaderboard.
type LeaderboardVisibility string

const (
	LeaderboardAlways     LeaderboardVisibility = "always"
	LeaderboardAfterClose LeaderboardVisibility = "after_close"
)

// Policy gathers the tunable rules of the engine.
type Policy struct {
	Grading             grading.Options
	Speed               grading.SpeedPolicy
	MaxAttemptsLive     int // 0 = unlimited
	MaxAttemptsHomework int // 0 = unlimited
	LeaderboardTopN     int // 0 = everyone
	HomeworkLeaderboard LeaderboardVisibility
	StoreRetries        int
	CommandRetries      int
	AutoAdvance         bool
	AutoAdvanceGrace    time.Duration
}

// DefaultPolicy returns the defaults used when no config overrides them.
func DefaultPolicy() Policy {
	return Policy{
		Speed:               grading.DefaultSpeedPolicy(),
		LeaderboardTopN:     10,
		HomeworkLeaderboard: LeaderboardAlways,
		StoreRetries:        3,
		CommandRetries:      3,
		AutoAdvanceGrace:    2 * time.Second,
	}
}

func (p Policy) maxAttempts(mode domain.Mode) int {
	if mode == domain.ModeLive {
		return p.MaxAttemptsLive
	}
	return p.MaxAttemptsHomework
}
