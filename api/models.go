package api

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PutAssignmentRequest creates or replaces an account's node assignment.
// ClientState is base64url (no padding) encoded key material fingerprint.
type PutAssignmentRequest struct {
	Node          string  `json:"node"`
	UID           int64   `json:"uid"`
	ClientState   string  `json:"client_state,omitempty"`
	KeysChangedAt *uint64 `json:"keys_changed_at,omitempty"`
	Generation    uint64  `json:"generation,omitempty"`
}

// AssignmentResponse mirrors a stored assignment on the admin surface.
type AssignmentResponse struct {
	Node          string  `json:"node"`
	UID           int64   `json:"uid"`
	ClientState   string  `json:"client_state,omitempty"`
	KeysChangedAt *uint64 `json:"keys_changed_at,omitempty"`
	Generation    uint64  `json:"generation"`
}

// ListAssignmentsResponse lists the lookup keys of all stored assignments.
type ListAssignmentsResponse struct {
	Assignments []string `json:"assignments"`
}

// HeartbeatResponse reports service and backing store health.
type HeartbeatResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}
