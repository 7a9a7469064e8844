package model

// Raw upstream event shapes, one per source category. Field names follow the
// upstream JSON; anything the normalizer does not extract stays untouched.

// IdentityUserEvent is a user-level event from the identity provider's
// events endpoint. Time is epoch milliseconds; zero means the upstream
// omitted it. Timestamp is a fallback some deployments emit instead of
// the integer field, as an ISO-8601 string.
type IdentityUserEvent struct {
	Type      string            `json:"type"`
	Time      int64             `json:"time"`
	Timestamp string            `json:"timestamp"`
	RealmID   string            `json:"realmId"`
	UserID    string            `json:"userId"`
	SessionID string            `json:"sessionId"`
	IPAddress string            `json:"ipAddress"`
	Details   map[string]string `json:"details"`
}

// IdentityAdminEvent is an administrative event from the identity provider's
// admin-events endpoint.
type IdentityAdminEvent struct {
	OperationType  string      `json:"operationType"`
	Time           int64       `json:"time"`
	Timestamp      string      `json:"timestamp"`
	RealmID        string      `json:"realmId"`
	ResourcePath   string      `json:"resourcePath"`
	ResourceType   string      `json:"resourceType"`
	AuthDetails    AuthDetails `json:"authDetails"`
	Representation string      `json:"representation"`
}

// AuthDetails identifies the acting principal of an admin event.
type AuthDetails struct {
	UserID    string `json:"userId"`
	ClientID  string `json:"clientId"`
	IPAddress string `json:"ipAddress"`
}

// ApplicationEvent is one item from the application's history API.
type ApplicationEvent struct {
	Project ProjectRef     `json:"project"`
	By      string         `json:"by"`
	At      string         `json:"at"`
	Type    string         `json:"type"`
	Info    map[string]any `json:"info"`
}

// ProjectRef names the project an application event belongs to.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
