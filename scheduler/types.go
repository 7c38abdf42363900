// Package scheduler implements persisted cron and one-shot jobs with
// at-most-one-in-flight-per-job execution, crash-safe whole-file JSON
// persistence, and controlled expiry of past-due one-shots. It is
// grounded on govega/serve/scheduler.go's robfig/cron/v3 wiring,
// generalized from the teacher's DSL-agent job model to clawless's
// ScheduleConfig/ScheduleJob data model.
package scheduler

import "time"

// Kind distinguishes recurring cron jobs from one-shot timers.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindOneTime   Kind = "oneTime"
)

// JobType distinguishes operator-created schedules from the ones the
// hybrid pipeline creates for ASYNC background tasks.
type JobType string

const (
	TypeStandard         JobType = "standard"
	TypeAsyncConversation JobType = "async_conversation"
)

// Metadata carries the chat id an async_conversation job should post its
// result to.
type Metadata struct {
	ChatID string `json:"chatId,omitempty"`
}

// Config is the persisted schedule record.
type Config struct {
	ID              string    `json:"id"`
	Message         string    `json:"message"`
	Description     string    `json:"description,omitempty"`
	Kind            Kind      `json:"kind"`
	CronExpression  string    `json:"cronExpression,omitempty"`
	RunAt           *time.Time `json:"runAt,omitempty"`
	Type            JobType   `json:"type"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	Active          bool      `json:"active"`
}

// CreateRequest is the input to Create; Kind/ID/CreatedAt/Active are
// derived.
type CreateRequest struct {
	Message        string
	Description    string
	CronExpression string
	OneTime        bool
	RunAt          *time.Time
	Type           JobType
	Metadata       Metadata
}

// UpdatePatch carries the subset of fields to change; nil fields are left
// unchanged. At least one field must be set.
type UpdatePatch struct {
	Message        *string
	Description    *string
	CronExpression *string
	RunAt          *time.Time
	Active         *bool
	Metadata       *Metadata
}

// document is the on-disk whole-file format: {"schedules": [...]}.
type document struct {
	Schedules []Config `json:"schedules"`
}
