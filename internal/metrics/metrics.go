// Package metrics exposes prometheus collectors for the assessment engine.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"live-assessment-service/internal/domain"
)

var (
	submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_assessment_submissions_total",
			Help: "Submissions processed, by session mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: ok or a lowercased error code
	)

	verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_assessment_grading_verdicts_total",
			Help: "Grading verdicts, by question type and verdict",
		},
		[]string{"type", "verdict"}, // verdict: correct/incorrect/manual
	)

	submitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "live_assessment_submit_duration_seconds",
			Help:    "Time spent validating, grading and committing a submission",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	hostCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_assessment_host_commands_total",
			Help: "Host lifecycle commands, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_assessment_joins_total",
			Help: "Participant joins, split into new and resumed identities",
		},
		[]string{"kind"},
	)
)

// ObserveSubmission records one submission attempt and its latency.
func ObserveSubmission(mode domain.Mode, err error, started time.Time) {
	submissions.WithLabelValues(string(mode), outcome(err)).Inc()
	submitDuration.WithLabelValues(string(mode)).Observe(time.Since(started).Seconds())
}

// ObserveVerdict records the grading outcome for an accepted submission.
func ObserveVerdict(questionType domain.QuestionType, v domain.Verdict) {
	label := "manual"
	switch {
	case v.IsCorrect != nil && *v.IsCorrect:
		label = "correct"
	case v.IsCorrect != nil:
		label = "incorrect"
	}
	verdicts.WithLabelValues(string(questionType), label).Inc()
}

// ObserveCommand records a host lifecycle command.
func ObserveCommand(command string, err error) {
	hostCommands.WithLabelValues(command, outcome(err)).Inc()
}

// ObserveJoin records a join; resumed joins reuse an issued identity.
func ObserveJoin(resumed bool) {
	if resumed {
		joins.WithLabelValues("resumed").Inc()
		return
	}
	joins.WithLabelValues("new").Inc()
}

func outcome(err error) string {
	return strings.ToLower(domain.ErrorCode(err))
}
