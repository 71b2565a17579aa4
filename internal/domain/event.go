package domain

// EventStatus is the lifecycle state of a ledger record.
type EventStatus string

const (
	StatusProcessing EventStatus = "processing"
	StatusCompleted  EventStatus = "completed"
)

// EventRecord is the persisted idempotency row for one inbound event id.
// AIResponse is nil until the record is completed.
type EventRecord struct {
	EventID     string      `json:"event_id" db:"event_id"`
	Status      EventStatus `json:"status" db:"status"`
	UserID      string      `json:"user_id" db:"user_id"`
	ChannelID   string      `json:"channel_id" db:"channel_id"`
	ThreadID    string      `json:"thread_id" db:"thread_id"`
	UserMessage string      `json:"user_message" db:"user_message"`
	AIResponse  *string     `json:"ai_response,omitempty" db:"ai_response"`
	CreatedAt   int64       `json:"created_at" db:"created_at"`
}
