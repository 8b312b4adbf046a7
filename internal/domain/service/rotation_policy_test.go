package service

import (
	"testing"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/repository"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
)

func TestRotationPolicy_Evaluate(t *testing.T) {
	policy := NewRotationPolicy(0, 0)

	tests := []struct {
		name    string
		size    int64
		urgency float64
		want    repository.SealReason
	}{
		{name: "below both thresholds", size: 1024, urgency: 0.75, want: repository.SealReasonNone},
		{name: "size reached", size: DefaultMaxFileSize, urgency: 0, want: repository.SealReasonSize},
		{name: "single error log", size: 200, urgency: 1.0, want: repository.SealReasonUrgency},
		{name: "size wins over urgency", size: DefaultMaxFileSize + 1, urgency: 2, want: repository.SealReasonSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Evaluate(tt.size, tt.urgency); got != tt.want {
				t.Fatalf("Evaluate(%d, %.2f) = %q, want %q", tt.size, tt.urgency, got, tt.want)
			}
		})
	}
}

func TestUrgencyScorer_Score(t *testing.T) {
	scorer := NewUrgencyScorer(UrgencyWeights{})

	tests := []struct {
		level valueobject.LogLevel
		want  float64
	}{
		{valueobject.LevelTrace, 0},
		{valueobject.LevelDebug, 0.1},
		{valueobject.LevelInfo, 0.25},
		{valueobject.LevelWarning, 0.5},
		{valueobject.LevelError, 1.0},
		{valueobject.LevelFatal, 1.0},
	}

	for _, tt := range tests {
		log, _ := entity.NewLog(tt.level, "msg", entity.SourceLocation{})
		if got := scorer.Score(log); got != tt.want {
			t.Fatalf("Score(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}

	event, _ := entity.NewEvent("tap")
	if got := scorer.Score(event); got != 0.25 {
		t.Fatalf("Score(event) = %v, want 0.25", got)
	}
}

func TestUrgencyScorer_TwoWarningsSealFile(t *testing.T) {
	scorer := NewUrgencyScorer(DefaultUrgencyWeights())
	policy := NewRotationPolicy(0, 0)

	var entries []entity.Entry
	for i := 0; i < 2; i++ {
		log, _ := entity.NewLog(valueobject.LevelWarning, "careful", entity.SourceLocation{})
		entries = append(entries, log)
	}

	if got := policy.Evaluate(0, scorer.Sum(entries)); got != repository.SealReasonUrgency {
		t.Fatalf("two warnings should reach the threshold, got %q", got)
	}
}
