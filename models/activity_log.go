package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityAction is the kind of account activity recorded
type ActivityAction string

const (
	ActivityContextSwitch   ActivityAction = "context_switch"
	ActivityContextUnlocked ActivityAction = "context_unlocked"
	ActivitySignup          ActivityAction = "signup"
	ActivityLogin           ActivityAction = "login"
	ActivityLogout          ActivityAction = "logout"
	ActivityLegacyLogin     ActivityAction = "legacy_login"
)

// ActivityLog is an append-only account activity entry
type ActivityLog struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Action      ActivityAction  `json:"action" db:"action"`
	FromContext *Context        `json:"from_context,omitempty" db:"from_context"`
	ToContext   *Context        `json:"to_context,omitempty" db:"to_context"`
	EntityID    *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	RequestID   string          `json:"request_id,omitempty" db:"request_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ActivityLog model
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// NewActivityLog creates a new ActivityLog instance
func NewActivityLog(userID uuid.UUID, action ActivityAction) *ActivityLog {
	return &ActivityLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// WithTransition records the context change
func (a *ActivityLog) WithTransition(from, to Context) *ActivityLog {
	if from != "" {
		a.FromContext = &from
	}
	if to != "" {
		a.ToContext = &to
	}
	return a
}

// WithEntity sets the bound entity
func (a *ActivityLog) WithEntity(entityID *uuid.UUID) *ActivityLog {
	a.EntityID = entityID
	return a
}

// WithDetails sets the details
func (a *ActivityLog) WithDetails(details interface{}) *ActivityLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets the request id
func (a *ActivityLog) WithRequest(requestID string) *ActivityLog {
	a.RequestID = requestID
	return a
}
