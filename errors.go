package clawless

import "errors"

// Sentinel errors surfaced by the runtime, queue, and scheduler. Callers use
// errors.Is against these; human-facing text is derived separately.
var (
	// ErrAgentNotFound is returned when the configured agent executable is
	// missing or fails its --version probe. Fatal at startup.
	ErrAgentNotFound = errors.New("clawless: agent executable not found or unresponsive")

	// ErrNoResponse marks a prompt that produced zero chunks and an
	// end_turn stop reason. It is not returned as an error: the
	// settlement is a success whose text is noResponseText.
	ErrNoResponse = errors.New("clawless: no response received")

	// ErrCancelled marks a prompt settlement caused by an agent-initiated
	// cancel (stopReason == "cancelled") with nothing buffered.
	ErrCancelled = errors.New("clawless: cancelled")

	// ErrAbortedByUser marks a prompt settlement caused by a user abort
	// command, distinguished from ErrCancelled for user-facing text.
	ErrAbortedByUser = errors.New("clawless: aborted by user")

	// ErrRuntimeNotReady is returned when a prompt is attempted while the
	// runtime could not be brought to the Ready state.
	ErrRuntimeNotReady = errors.New("clawless: runtime not ready")

	// ErrShuttingDown is returned by operations attempted after shutdown has
	// been requested.
	ErrShuttingDown = errors.New("clawless: shutting down")

	// ErrScheduleNotFound reports an unknown schedule id. The scheduler
	// package's Get/Update/Remove return its own scheduler.ErrNotFound, not
	// this value.
	ErrScheduleNotFound = errors.New("clawless: schedule not found")

	// ErrInvalidSchedule describes a ScheduleConfig that fails its
	// recurring/oneTime invariants. Scheduler.Create reports such failures
	// with its own formatted errors, not this value.
	ErrInvalidSchedule = errors.New("clawless: invalid schedule")

	// ErrNoBoundChat is returned when a proactive send is attempted with no
	// chatId given and no bound chat recorded yet.
	ErrNoBoundChat = errors.New("clawless: no bound chat")

	// ErrUnauthorized describes a chat message from a user not on the
	// configured whitelist. The orchestrator answers such a message with a
	// refusal text and does not return this value.
	ErrUnauthorized = errors.New("clawless: unauthorized chat")

	// ErrBodyTooLarge describes a request body over the configured limit.
	// The HTTP surface writes a 413 JSON error directly and does not return
	// this value.
	ErrBodyTooLarge = errors.New("clawless: request body too large")
)
