package model

import (
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
		JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
		JobStatusCompleted:  {},
		JobStatusFailed:     {},
	}
	all := []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

	for from, oks := range allowed {
		okSet := map[JobStatus]bool{}
		for _, s := range oks {
			okSet[s] = true
		}
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != okSet[to] {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, okSet[to])
			}
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	if JobStatusPending.Terminal() || JobStatusProcessing.Terminal() {
		t.Fatal("non-terminal status reported terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatal("terminal status not reported terminal")
	}
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	j := NewJob("01J", "t1", "u1", TopicNicheReview, map[string]string{"current_value": "x"}, 12000, time.Hour)
	if j.Status != JobStatusPending {
		t.Fatalf("status = %s", j.Status)
	}
	if j.IsConversationTurn() {
		t.Fatal("single-shot job flagged as turn")
	}
	if !j.ExpiresAt.After(j.CreatedAt) {
		t.Fatal("ttl not applied")
	}
	if j.EstimatedDurationMs != 12000 {
		t.Fatalf("estimate = %d", j.EstimatedDurationMs)
	}
}
