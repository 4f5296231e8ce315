// Package ipc is the unix-socket control plane between the owner session
// process and forwarding invocations (hotkey bindings, shell, scripts).
package ipc

// Commands accepted by the owner session.
const (
	CommandStatus = "status"
	CommandToggle = "toggle"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// Request is one newline-delimited JSON command.
type Request struct {
	Command string `json:"command"`
}

// Response reports command outcome plus the owner's current phase.
type Response struct {
	OK        bool   `json:"ok"`
	Phase     string `json:"phase,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
