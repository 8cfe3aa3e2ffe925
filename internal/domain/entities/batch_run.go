package entities

import (
	"fmt"
	"time"
)

// BatchState is a step of the batch state machine.
type BatchState string

const (
	BatchStateIdle        BatchState = "idle"
	BatchStateValidating  BatchState = "validating"
	BatchStateReading     BatchState = "reading"
	BatchStateNormalizing BatchState = "normalizing"
	BatchStateProcessing  BatchState = "processing"
	BatchStateDone        BatchState = "done"
	BatchStateFailed      BatchState = "failed"
	BatchStateCancelled   BatchState = "cancelled"
)

var batchTransitions = map[BatchState][]BatchState{
	BatchStateIdle:        {BatchStateValidating},
	BatchStateValidating:  {BatchStateReading, BatchStateFailed},
	BatchStateReading:     {BatchStateNormalizing, BatchStateFailed},
	BatchStateNormalizing: {BatchStateProcessing},
	BatchStateProcessing:  {BatchStateDone, BatchStateCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func (s BatchState) CanTransition(to BatchState) bool {
	for _, next := range batchTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BatchState) Terminal() bool {
	return len(batchTransitions[s]) == 0
}

// Batch sources.
const (
	BatchSourceManual = "manual"
	BatchSourceSample = "sample"
)

// Progress counts processed records of a batch.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// BatchSummary aggregates a finished run.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	HighRisk  int `json:"high_risk"`
}

// BatchRun is one spreadsheet-driven run (or a single manual/sample
// submission) and its accumulated results.
type BatchRun struct {
	ID         string              `json:"id" db:"id"`
	UserID     string              `json:"user_id" db:"user_id"`
	Source     string              `json:"source" db:"source"`
	State      BatchState          `json:"state" db:"state"`
	Progress   Progress            `json:"progress"`
	Results    []ExplanationResult `json:"results,omitempty"`
	Error      string              `json:"error,omitempty" db:"error"`
	StartedAt  time.Time           `json:"started_at" db:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty" db:"finished_at"`
}

// Transition moves the run to the next state or reports an illegal move.
func (b *BatchRun) Transition(to BatchState) error {
	if !b.State.CanTransition(to) {
		return fmt.Errorf("batch %s: illegal transition %s -> %s", b.ID, b.State, to)
	}
	b.State = to
	if to.Terminal() {
		now := time.Now()
		b.FinishedAt = &now
	}
	return nil
}

// Summary counts successes, failures and high-risk predictions.
func (b *BatchRun) Summary() BatchSummary {
	s := BatchSummary{Total: len(b.Results)}
	for _, r := range b.Results {
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		if r.IsHighRisk() {
			s.HighRisk++
		}
	}
	return s
}

// Snapshot returns a copy that can be handed to readers while the run is
// still being written.
func (b *BatchRun) Snapshot() *BatchRun {
	cp := *b
	cp.Results = append([]ExplanationResult(nil), b.Results...)
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// BatchEventType identifies a progress notification.
type BatchEventType string

const (
	BatchEventStateChanged BatchEventType = "batch_state_changed"
	BatchEventProgress     BatchEventType = "batch_progress"
)

// BatchEvent is published after every state change and every processed
// record so that observers see progress before the next call starts.
type BatchEvent struct {
	ID        string         `json:"id"`
	Type      BatchEventType `json:"type"`
	BatchID   string         `json:"batch_id"`
	UserID    string         `json:"user_id"`
	State     BatchState     `json:"state"`
	Progress  Progress       `json:"progress"`
	Timestamp time.Time      `json:"timestamp"`
}
