package session

import "github.com/shopspring/decimal"

// EventType 是推送给展示层的信号类型。
type EventType string

const (
	EventStarted   EventType = "started"
	EventTick      EventType = "tick"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventEnding    EventType = "ending"
	EventError     EventType = "error"
	EventCompleted EventType = "completed"
	EventClosed    EventType = "closed"
)

// Event is one state signal of an active session.
type Event struct {
	Type           EventType       `json:"event"`
	SessionID      string          `json:"sessionId,omitempty"`
	State          State           `json:"state"`
	ElapsedSeconds int64           `json:"elapsedSeconds"`
	Elapsed        string          `json:"elapsed"`
	EstimatedCost  decimal.Decimal `json:"estimatedCost"`
	DisplayCost    string          `json:"displayCost"`
	IsPaused       bool            `json:"isPaused"`
	Message        string          `json:"message,omitempty"`
	Retryable      bool            `json:"retryable,omitempty"`
	Redirect       string          `json:"redirect,omitempty"`
	Proofs         []ProofOutcome  `json:"proofs,omitempty"`
}
