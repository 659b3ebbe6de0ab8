package action

// Status is the terminal outcome classification of one command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// StepStatus tracks one progress phase through its lifecycle.
type StepStatus string

const (
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Step is one progress report emitted by a handler. Within a single command
// the sequence is append-only, and for any label the in_progress report
// precedes its completed/failed report.
type Step struct {
	Label  string         `json:"step"`
	Status StepStatus     `json:"status"`
	Data   map[string]any `json:"data"`
}

// Result is the terminal outcome of one command. Exactly one Result exists
// per processed command.
type Result struct {
	Status Status `json:"status"`
	// Message is caller-facing; handler internals never leak through it.
	Message string `json:"message"`
	// Data carries free-form outputs, including primary-artifact references
	// that must survive a partial failure.
	Data map[string]any `json:"data,omitempty"`
	// Actions maps labels to follow-up references (e.g. "view" -> URL).
	Actions map[string]string `json:"actions,omitempty"`
	// CompletedSteps is the flattened human-readable step log.
	CompletedSteps []string `json:"completed_steps,omitempty"`
}

// Success builds a success Result.
func Success(message string) *Result {
	return &Result{Status: StatusSuccess, Message: message}
}

// Partial builds a partial Result: the primary artifact exists but a
// secondary step failed.
func Partial(message string) *Result {
	return &Result{Status: StatusPartial, Message: message}
}

// Fail builds a failed Result.
func Fail(message string) *Result {
	return &Result{Status: StatusFailed, Message: message}
}

// WithData sets one data key, allocating the map on first use.
func (r *Result) WithData(key string, value any) *Result {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}

// WithAction records a follow-up reference under label.
func (r *Result) WithAction(label, ref string) *Result {
	if r.Actions == nil {
		r.Actions = make(map[string]string)
	}
	r.Actions[label] = ref
	return r
}

// Succeeded reports whether the command produced its primary outcome
// (success or partial).
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}
