package types

import "time"

// Transaction is one simulated event emitted by a device worker.
// It is never modified after the worker hands it to a sink.
type Transaction struct {
	TransactionID string         `json:"transaction_id"`
	DeviceID      string         `json:"device_id"`
	Username      string         `json:"username"`
	EventType     string         `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"` // set by the sink on persist
}

type WorkersStatus struct {
	ActiveWorkerCount int    `json:"active_worker_count"`
	Message           string `json:"message"`
}

type WorkerState struct {
	DeviceID string `json:"device_id"`
	Running  bool   `json:"running"`
}
