package domain

import "time"

// Event topics published by the engine.
const (
	TopicSessionCreated    = "rbac.session.created"
	TopicSessionClosed     = "rbac.session.closed"
	TopicPermissionGranted = "rbac.permission.granted"
	TopicPermissionRevoked = "rbac.permission.revoked"
)

type SessionCreatedEvent struct {
	SessionID string    `json:"session_id"`
	ContextID string    `json:"context_id"`
	UserID    string    `json:"user_id"`
	Roles     []string  `json:"roles"`
	Warnings  int       `json:"warnings"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionCreatedEvent) Topic() string { return TopicSessionCreated }

type SessionClosedEvent struct {
	SessionID string    `json:"session_id"`
	ContextID string    `json:"context_id"`
	UserID    string    `json:"user_id"`
	ClosedAt  time.Time `json:"closed_at"`
}

func (SessionClosedEvent) Topic() string { return TopicSessionClosed }

type PermissionGrantedEvent struct {
	ContextID string `json:"context_id"`
	ObjName   string `json:"obj_name"`
	OpName    string `json:"op_name"`
	// Exactly one of Role and UserID is set.
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (PermissionGrantedEvent) Topic() string { return TopicPermissionGranted }

type PermissionRevokedEvent struct {
	ContextID string `json:"context_id"`
	ObjName   string `json:"obj_name"`
	OpName    string `json:"op_name"`
	Role      string `json:"role,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

func (PermissionRevokedEvent) Topic() string { return TopicPermissionRevoked }
