package models

import "time"

// RunStatus represents the lifecycle state of an automation run.
type RunStatus string

const (
	// RunStatusRunning indicates the run has been created and the script is executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusSuccess indicates the script function returned without error.
	RunStatusSuccess RunStatus = "success"
	// RunStatusError indicates the script, the browser or the process failed.
	RunStatusError RunStatus = "error"
)

// IsTerminal reports whether the status can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// Run is one execution attempt of a configuration.
type Run struct {
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	Error          *string    `json:"error,omitempty"`
	ID             string     `json:"id"`
	ConfigID       string     `json:"config_id"`
	Status         RunStatus  `json:"status"`
	Output         string     `json:"output"`
	CardsAttempted int        `json:"cards_attempted"`
	CardsCreated   int        `json:"cards_created"`
	CardsFailed    int        `json:"cards_failed"`
	Headless       bool       `json:"headless"`
}

// RunWithConfig extends Run with the owning configuration's name.
type RunWithConfig struct {
	Run
	ConfigName string `json:"config_name"`
}

// RunFinish is the single terminal update applied to a run.
type RunFinish struct {
	EndedAt        time.Time
	Error          *string
	Status         RunStatus
	Output         string
	CardsAttempted int
	CardsCreated   int
	CardsFailed    int
}

// RunRequest is the input of the run orchestration procedure.
type RunRequest struct {
	ConfigID string `json:"config_id" binding:"required"`
	Headless bool   `json:"headless"`
}
