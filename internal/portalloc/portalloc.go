// Package portalloc obtains ephemeral loopback TCP ports from the OS.
package portalloc

import (
	"fmt"
	"net"
	"strconv"
)

// AllocationError indicates the OS refused an ephemeral bind.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("port allocation failed: %v", e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Allocate binds a listening socket on 127.0.0.1:0, reads back the
// OS-assigned port, and releases the socket. There is an inherent window
// between release and the caller binding the port again; callers that care
// should re-check with Free before reuse.
func Allocate() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, &AllocationError{Err: err}
	}
	addr := ln.Addr().(*net.TCPAddr)
	if err := ln.Close(); err != nil {
		return 0, &AllocationError{Err: err}
	}
	return addr.Port, nil
}

// Free reports whether port can currently be bound on the loopback
// interface. Used to decide between reusing a prior allocation across a
// restart and allocating a fresh port.
func Free(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
