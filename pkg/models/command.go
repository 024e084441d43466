package models

// Command names accepted by the control plane
const (
	CommandStart       = "start"
	CommandStop        = "stop"
	CommandStatus      = "status"
	CommandActivityLog = "activity-log"
	CommandShutdown    = "shutdown"
)

// Command is an inbound control request. Duration is optional and only
// read by start: nil means the configured session duration, an explicit
// zero runs until stopped.
type Command struct {
	Command  string `json:"command"`
	Duration *int   `json:"duration,omitempty"`
}

// Response answers every Command. Only the fields relevant to the
// command are populated. Activities is a pointer so an empty log still
// encodes as [].
type Response struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	Running    *bool        `json:"running,omitempty"`
	Stats      *Stats       `json:"stats,omitempty"`
	Session    *SessionInfo `json:"session,omitempty"`
	Activities *[]string    `json:"activities,omitempty"`
}

// OK builds a successful response carrying a message
func OK(message string) Response {
	return Response{Success: true, Message: message}
}

// Fail builds a failed response carrying an error message
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
