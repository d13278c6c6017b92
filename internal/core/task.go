package core

import "time"

// TaskState is the lifecycle state of a synthesis task.
type TaskState string

// Task states. Transitions are monotonic: pending -> running -> terminal.
// A terminal task never re-enters pending or running.
const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether s is a terminal state.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// SynthesisOptions are per-request knobs passed through to the engine.
type SynthesisOptions struct {
	Language    string  `json:"language,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Seed        int     `json:"seed,omitempty"`
}

// SynthesisInput describes one synthesis request.
type SynthesisInput struct {
	UserID  string           `json:"user_id"`
	Text    string           `json:"text"`
	VoiceID string           `json:"voice_id"`
	Options SynthesisOptions `json:"options"`
}

// TaskResult locates the synthesized audio. Present only on succeeded tasks.
type TaskResult struct {
	AudioKey        string  `json:"audio_key"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// TaskError is the structured cause of a failed task.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes recorded on failed tasks.
const (
	TaskErrorEngine  = "engine_error"
	TaskErrorTimeout = "engine_timeout"
	TaskErrorStorage = "storage_error"
	TaskErrorPublish = "publish_error"
)

// Task is the execution record of one synthesis request. Tasks are created
// by the dispatcher and mutated only by the component currently executing
// them; they are never deleted by this layer.
type Task struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	State         TaskState      `json:"state"`
	Input         SynthesisInput `json:"input"`
	Result        *TaskResult    `json:"result,omitempty"`
	Error         *TaskError     `json:"error,omitempty"`
	ReservationID string         `json:"reservation_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TaskStatus is the read model exposed to polling collaborators.
type TaskStatus struct {
	TaskID    string      `json:"task_id"`
	State     TaskState   `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	Result    *TaskResult `json:"result,omitempty"`
	Error     *TaskError  `json:"error,omitempty"`
}

// Status projects the task onto its polling read model.
func (t *Task) Status() TaskStatus {
	return TaskStatus{
		TaskID:    t.ID,
		State:     t.State,
		CreatedAt: t.CreatedAt,
		Result:    t.Result,
		Error:     t.Error,
	}
}
