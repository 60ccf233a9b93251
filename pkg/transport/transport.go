// Package transport abstracts the socket used to exchange CoT messages with a
// TAK server.
//
// A successful Dial corresponds to the socket's open event. After that the
// transport reports inbound payloads through Handler.OnMessage and reports the
// end of the connection exactly once through Handler.OnClose, from its own
// goroutine. OnClose receives nil for an orderly close (including one started
// by Conn.Close) and the cause otherwise. Conn.Close must not invoke the
// handler synchronously. Callbacks may run before Dial returns, including when
// Dial then fails; callers must not block them indefinitely.
package transport

import "context"

// Handler receives socket events.
type Handler interface {
	OnMessage(payload []byte)
	OnClose(err error)
}

// Conn is an open socket.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens sockets to a server URI.
type Dialer interface {
	Dial(ctx context.Context, server string, h Handler) (Conn, error)
}
