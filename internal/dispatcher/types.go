package dispatcher

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/instance-gateway/internal/wsbridge"
)

// Socket is an upgraded, message-oriented connection to the instance.
type Socket = wsbridge.Conn

// Response is what an instance answers with. Socket is set only when the
// instance accepted a WebSocket upgrade; the embedded response then describes
// the handshake and carries no body worth relaying.
type Response struct {
	*http.Response
	Socket Socket
}

// Instance is a handle on one backend instance.
type Instance interface {
	// Forward sends req to the instance once and returns its answer. An
	// error means no answer was obtained.
	Forward(ctx context.Context, req *http.Request) (*Response, error)
}

// Router maps a logical name onto an instance handle. Resolving the same name
// must keep yielding the same logical instance.
type Router interface {
	Resolve(name string) (Instance, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(name string) (Instance, error)

func (f RouterFunc) Resolve(name string) (Instance, error) {
	return f(name)
}

// InstanceFunc adapts a function to Instance.
type InstanceFunc func(ctx context.Context, req *http.Request) (*Response, error)

func (f InstanceFunc) Forward(ctx context.Context, req *http.Request) (*Response, error) {
	return f(ctx, req)
}
