package models

// CommandType enumerates the inbound participant commands a room accepts.
type CommandType string

const (
	CmdStepCompleted      CommandType = "stepCompleted"
	CmdAsyncStepCompleted CommandType = "asyncStepComplete"
	CmdRoundChoice        CommandType = "roundChoice"
	CmdChat               CommandType = "chat"
	CmdNotResponded       CommandType = "notResponded"
	CmdKeepWaiting        CommandType = "keepWaiting"
	CmdLeave              CommandType = "leave"
)

// Command captures one participant request. Every mutation of room state
// flows through exactly one of these, applied under the room lock.
type Command struct {
	Type    CommandType            `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}
