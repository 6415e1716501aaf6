package shadow

import "github.com/nerrad567/rpigarage/internal/door"

// ReportedSection is the reported half of an update: what the device saw.
type ReportedSection struct {
	DoorStatus       door.ReportedStatus `json:"doorStatus,omitempty"`
	CorrelationToken *string             `json:"correlationToken"`
	EndpointID       string              `json:"endpointId"`
}

// DesiredSection is the desired half of an update. The device writes it
// either as a bare token echo (no doorStatus) or with the target state
// after acting on a toggle request.
type DesiredSection struct {
	DoorStatus       door.DesiredCommand `json:"doorStatus,omitempty"`
	CorrelationToken *string             `json:"correlationToken"`
	EndpointID       string              `json:"endpointId"`
}

// UpdateState holds both sections of an update request.
type UpdateState struct {
	Reported ReportedSection `json:"reported"`
	Desired  DesiredSection  `json:"desired"`
}

// UpdateRequest is published on the update topic.
type UpdateRequest struct {
	State       UpdateState `json:"state"`
	ClientToken string      `json:"clientToken,omitempty"`
}

// AcceptedDocument is received on update/accepted. Sections are pointers
// so an absent section can be told apart from an empty one.
type AcceptedDocument struct {
	State *struct {
		Desired  *DesiredSection  `json:"desired,omitempty"`
		Reported *ReportedSection `json:"reported,omitempty"`
	} `json:"state,omitempty"`
	Version     int64  `json:"version"`
	Timestamp   int64  `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// RejectedDocument is received on update/rejected.
type RejectedDocument struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// DesiredUpdate is a desired section delivered to subscribers.
type DesiredUpdate struct {
	DoorStatus       door.DesiredCommand
	CorrelationToken string
	Version          int64
}

// Token converts a correlation token to its wire form: nil when empty.
func Token(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TokenValue returns the token or "" for null.
func TokenValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
