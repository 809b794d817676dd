package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned for a frame whose type is not part of the protocol
var ErrUnknownCommand = errors.New("unknown command type")

// CommandType tags a remote-control frame exchanged between master and worker
type CommandType string

const (
	// Master -> worker
	CommandCreate CommandType = "Create"
	CommandStart  CommandType = "Start"
	CommandStop   CommandType = "Stop"
	CommandFinish CommandType = "Finish"

	// Worker -> master
	CommandHello  CommandType = "Hello"
	CommandReport CommandType = "Report"
)

// Command is the envelope carried in every text frame of the control channel
type Command struct {
	Type       CommandType `json:"type"`
	TestConfig *TestConfig `json:"test_config,omitempty"`
	UserCount  int         `json:"user_count,omitempty"`
	WorkerID   string      `json:"worker_id,omitempty"`
	Report     *Report     `json:"report,omitempty"`
}

// DecodeCommand parses and validates a control frame
func DecodeCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("invalid command payload: %w", err)
	}

	switch cmd.Type {
	case CommandCreate:
		if cmd.TestConfig == nil {
			return nil, fmt.Errorf("create command requires test_config")
		}
	case CommandStart, CommandStop, CommandFinish, CommandHello:
	case CommandReport:
		if cmd.Report == nil {
			return nil, fmt.Errorf("report command requires report")
		}
	case "":
		return nil, fmt.Errorf("command type is required")
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type)
	}

	return &cmd, nil
}

// Encode serializes the command for a text frame
func (c *Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", c.Type, err)
	}
	return data, nil
}
