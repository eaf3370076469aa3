package scan

import "time"

// Attempt outcomes
const (
	OutcomeIdentified = "identified"
	OutcomeEmpty      = "empty"
	OutcomeFailed     = "failed"
)

// Attempt records one scan attempt. It never holds personal data.
type Attempt struct {
	ID          string    `json:"id"`
	Camera      string    `json:"camera"`
	Frames      int       `json:"frames"`
	ResultState string    `json:"result_state"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
