package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const jsonRPCVersion = "2.0"

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Notification is a server-initiated message without a matching request id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Handler receives session events. Each call runs on its own goroutine; the
// context is cancelled when the connection that produced the event drops.
type Handler interface {
	OnConnected(ctx context.Context)
	OnNotification(ctx context.Context, n Notification)
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// message is the union of response and notification frames.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (m *message) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// requestID decodes the id as issued by this client. Some servers echo it as a string.
func (m *message) requestID() (uint64, error) {
	var id uint64
	if err := json.Unmarshal(m.ID, &id); err == nil {
		return id, nil
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err != nil {
		return 0, fmt.Errorf("%w: id %s", ErrInvalidMessage, string(m.ID))
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", ErrInvalidMessage, s)
	}
	return id, nil
}

type response struct {
	result json.RawMessage
	err    error
}
