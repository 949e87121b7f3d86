package domain

import "time"

type Role string

const (
	RoleUnknown    Role = ""
	RoleDriver     Role = "driver"
	RoleSubscriber Role = "subscriber"
)

// RoleFromClientType maps the advisory clientType connection metadata.
func RoleFromClientType(clientType string) Role {
	switch clientType {
	case "driver":
		return RoleDriver
	case "dashboard", "tracking", "customer", "subscriber":
		return RoleSubscriber
	default:
		return RoleUnknown
	}
}

type SessionState string

const (
	SessionConnected    SessionState = "CONNECTED"
	SessionRoleDeclared SessionState = "ROLE_DECLARED"
	SessionInTopics     SessionState = "IN_TOPICS"
	SessionClosed       SessionState = "CLOSED"
)

// Session is a read-only copy of a registry entry.
type Session struct {
	ConnectionID     string
	Role             Role
	DeclaredDriverID string
	State            SessionState
	Topics           []Topic
	OpenedAt         time.Time
}
