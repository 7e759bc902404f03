package wsbridge

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// controlTimeout bounds how long a forwarded ping or pong may block.
const controlTimeout = 20 * time.Second

// Conn is the message-level view of a websocket connection the bridge needs.
// *websocket.Conn implements it.
type Conn interface {
	NextReader() (messageType int, r io.Reader, err error)
	NextWriter(messageType int) (io.WriteCloser, error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	SetCloseHandler(h func(code int, text string) error)
	Subprotocol() string
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Bridge copies messages both ways between a and b until either side closes
// or fails, then closes both. Pings and pongs are forwarded to the other
// side. Normal closures return nil.
func Bridge(a, b Conn) error {
	a.SetPingHandler(forwardControl(websocket.PingMessage, b))
	b.SetPingHandler(forwardControl(websocket.PingMessage, a))
	a.SetPongHandler(forwardControl(websocket.PongMessage, b))
	b.SetPongHandler(forwardControl(websocket.PongMessage, a))

	a.SetCloseHandler(relayClose(b))
	b.SetCloseHandler(relayClose(a))

	defer func() {
		_ = a.Close()
		_ = b.Close()
	}()

	errc := make(chan error, 2)
	go func() { errc <- copyMessages(a, b) }()
	go func() { errc <- copyMessages(b, a) }()

	// The first direction to stop ends the bridge; closing both conns in the
	// deferred func unblocks the other copier.
	return <-errc
}

func copyMessages(dest, src Conn) error {
	for {
		mtype, reader, err := src.NextReader()
		if err != nil {
			return unexpected(err)
		}

		writer, err := dest.NextWriter(mtype)
		if err != nil {
			return unexpected(err)
		}

		_, err = io.Copy(writer, reader)
		closeErr := writer.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return unexpected(closeErr)
		}
	}
}

// unexpected drops errors that only report an ordinary closure.
func unexpected(err error) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return err
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
		websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
		return err
	}
	return nil
}

func forwardControl(messageType int, dest Conn) func(string) error {
	return func(appData string) error {
		return dest.WriteControl(messageType, []byte(appData), time.Now().Add(controlTimeout))
	}
}

// relayClose passes a close frame on to the peer so both ends see the same
// close code.
func relayClose(peer Conn) func(int, string) error {
	var once sync.Once
	return func(code int, text string) error {
		once.Do(func() {
			msg := websocket.FormatCloseMessage(code, text)
			if code == websocket.CloseNoStatusReceived {
				msg = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			}
			_ = peer.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		})
		return nil
	}
}
