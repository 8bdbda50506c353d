package session

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned for sends attempted outside StateConnected.
var ErrNotConnected = errors.New("not connected")

// ConnectError reports exhausted connect retries for one light.
type ConnectError struct {
	MAC      string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect failed after %d attempt(s): %v", e.MAC, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WriteError reports exhausted write retries mid-command. The whole command
// fails for the light's current pass, not just the packet that broke.
type WriteError struct {
	MAC      string
	Packet   int // index within the command's packet sequence
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: write of packet %d failed after %d attempt(s): %v", e.MAC, e.Packet, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// TransportFault wraps an unexpected transport-layer failure outside the
// connect/write paths, so raw stack errors never propagate bare.
type TransportFault struct {
	Op  string
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport fault during %s: %v", e.Op, e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}
