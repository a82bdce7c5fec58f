// Package rpc provides a JSON-RPC 2.0 client over a persistent WebSocket session.
package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates that the socket is closed, unreachable or failed mid-flight.
	ErrTransport = errors.New("rpc transport error")
	// ErrNotConnected indicates that a request was attempted while no connection is up.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrTransport)
	// ErrConnectionLost indicates that the connection dropped before a response arrived.
	ErrConnectionLost = fmt.Errorf("%w: connection lost", ErrTransport)
	// ErrClosed indicates that the client has been stopped.
	ErrClosed = fmt.Errorf("%w: client closed", ErrTransport)
	// ErrRequestTimeout indicates that no response arrived within the configured request timeout.
	ErrRequestTimeout = errors.New("rpc request timed out")
	// ErrRPC matches every well-formed JSON-RPC error response.
	ErrRPC = errors.New("rpc error response")
	// ErrInvalidMessage indicates an inbound frame that is not valid JSON-RPC.
	ErrInvalidMessage = errors.New("invalid rpc message")
	// ErrAlreadyStarted indicates that Start was called twice.
	ErrAlreadyStarted = errors.New("rpc client already started")
)

// Error is a JSON-RPC error object returned by the server.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is reports ErrRPC so callers can test with errors.Is.
func (e *Error) Is(target error) bool {
	return target == ErrRPC
}
