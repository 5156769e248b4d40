package domain

// TaskStatus is the lifecycle state of a background write-off task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// WriteOffTask is an allocation queued for background processing.
// RequestID is fixed at enqueue time and sent on every attempt.
// Timestamps are unix seconds.
type WriteOffTask struct {
	ID            string             `json:"id"`
	Description   string             `json:"description"`
	RequestID     string             `json:"request_id"`
	Items         []AllocationItem   `json:"items"`
	Status        TaskStatus         `json:"status"`
	Attempts      int                `json:"attempts"`
	MaxAttempts   int                `json:"max_attempts"`
	LastError     string             `json:"last_error,omitempty"`
	Results       []AllocationResult `json:"results,omitempty"`
	CreatedAt     int64              `json:"created_at"`
	NextAttemptAt int64              `json:"next_attempt_at"`
	CompletedAt   int64              `json:"completed_at,omitempty"`
}

// Done reports whether the task reached a terminal status.
func (t *WriteOffTask) Done() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
