// Package notifications keeps the push channel to the backend alive and
// collects what arrives on it into the courier's inbox.
package notifications

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateOpen        State = "open"
	StateClosedClean State = "closed-clean"
	StateClosedError State = "closed-error"
)

const (
	CloseNormal      = 1000
	CloseAbnormal    = 1006
	CloseServerError = 1011
)

// Texts shown to the courier when the channel gives up.
const (
	ServerFaultMessage    = "Ошибка на сервере уведомлений. Пожалуйста, обратитесь к администратору."
	ExhaustedMessage      = "Не удалось установить соединение с сервером уведомлений"
	ConnectionLostMessage = "Ошибка подключения к серверу уведомлений"
)

var (
	ErrServerFault        = errors.New("notification server fault")
	ErrReconnectExhausted = errors.New("notification reconnect attempts exhausted")
	ErrConnectTimeout     = errors.New("notification channel connect timeout")
)

// Conn is one open channel. Read blocks until a frame arrives, the peer
// closes or ctx is done.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close(code int, reason string) error
}

type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// CloseError is returned by Conn.Read when the peer sent a close frame or the
// connection dropped without one (CloseAbnormal).
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("channel closed with code %d: %s", e.Code, e.Reason)
}

// HandshakeError is returned by Transport.Dial when the server answered the
// upgrade request with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("channel handshake: status %d", e.StatusCode)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

type failure int

const (
	failTransient failure = iota
	failClean
	failServer
)

// classify is best-effort: a 5xx handshake or a 1011 close means the server
// is broken, any other close frame is an orderly end, everything else is a blip.
func classify(err error) failure {
	var hs *HandshakeError
	if errors.As(err, &hs) && hs.StatusCode >= http.StatusInternalServerError {
		return failServer
	}
	var ce *CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case CloseServerError:
			return failServer
		case CloseAbnormal:
			return failTransient
		default:
			return failClean
		}
	}
	return failTransient
}
