package domain

import "time"

// PendingOperation is a write that could not be confirmed (offline or
// network failure) and is queued for replay once connectivity returns.
type PendingOperation struct {
	ID            string          `json:"id"`
	OperationName string          `json:"operation_name"`
	OperationType OperationType   `json:"operation_type"`
	Collection    string          `json:"collection"`
	DocumentID    string          `json:"document_id,omitempty"`
	Data          map[string]any  `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	Status        OperationStatus `json:"status"`
}

type OperationType string

const (
	OperationTypeCreate OperationType = "create"
	OperationTypeUpdate OperationType = "update"
	OperationTypeDelete OperationType = "delete"
)

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusDropped   OperationStatus = "dropped"
)

// MaxReplayAttempts is the replay cap after which a pending operation is
// permanently dropped.
const MaxReplayAttempts = 5
