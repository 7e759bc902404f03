package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/instance-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/instance-gateway/internal/dispatcher"
)

// Handle forwards requests to the endpoint a logical instance name was
// placed on.
type Handle struct {
	name      string
	endpoint  *Endpoint
	breaker   *circuitbreaker.CircuitBreaker
	transport http.RoundTripper
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) Endpoint() *Endpoint {
	return h.endpoint
}

// Forward sends req to the endpoint once. WebSocket upgrades are dialed and
// answered with the upgraded socket; a refused handshake is answered with the
// endpoint's response and no socket. Errors mean the endpoint gave no answer.
func (h *Handle) Forward(ctx context.Context, req *http.Request) (*dispatcher.Response, error) {
	if h.breaker != nil && !h.breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, h.endpoint.Key())
	}

	var (
		resp *dispatcher.Response
		err  error
	)
	if websocket.IsWebSocketUpgrade(req) {
		resp, err = h.dial(ctx, req)
	} else {
		resp, err = h.roundTrip(ctx, req)
	}

	if err != nil {
		// a caller hanging up says nothing about the endpoint
		if h.breaker != nil && ctx.Err() == nil {
			h.breaker.RecordFailure()
		}
		h.logger.Debug("Forward failed", slog.Any("err", err))
		return nil, err
	}

	if h.breaker != nil {
		h.breaker.RecordSuccess()
	}
	return resp, nil
}

func (h *Handle) roundTrip(ctx context.Context, req *http.Request) (*dispatcher.Response, error) {
	out := req.Clone(ctx)
	if req.ContentLength == 0 {
		out.Body = nil
	}
	out.RequestURI = ""
	out.URL = h.target(req.URL, h.endpoint.URL().Scheme)
	dispatcher.RemoveHopHeaders(out.Header)
	addForwardedFor(out.Header, req.RemoteAddr)

	h.endpoint.IncrementConn()
	resp, err := h.transport.RoundTrip(out)
	if err != nil {
		h.endpoint.DecrementConn()
		return nil, err
	}

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: h.endpoint.DecrementConn}
	return &dispatcher.Response{Response: resp}, nil
}

func (h *Handle) dial(ctx context.Context, req *http.Request) (*dispatcher.Response, error) {
	scheme := "ws"
	if h.endpoint.URL().Scheme == "https" {
		scheme = "wss"
	}
	target := h.target(req.URL, scheme)

	header := make(http.Header, len(req.Header))
	for k, v := range req.Header {
		// the dialer writes its own handshake headers
		if k == "Upgrade" ||
			k == "Connection" ||
			k == "Sec-Websocket-Key" ||
			k == "Sec-Websocket-Version" ||
			k == "Sec-Websocket-Extensions" ||
			k == "Sec-Websocket-Protocol" {
			continue
		}
		header[k] = append([]string(nil), v...)
	}
	if req.Host != "" {
		header.Set("Host", req.Host)
	}
	addForwardedFor(header, req.RemoteAddr)

	dialer := *h.dialer
	dialer.Subprotocols = websocket.Subprotocols(req)

	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			h.logger.Info("Endpoint refused WebSocket upgrade", slog.Int("status", resp.StatusCode))
			return &dispatcher.Response{Response: resp}, nil
		}
		return nil, err
	}

	h.endpoint.IncrementConn()
	return &dispatcher.Response{
		Response: resp,
		Socket:   &releasingSocket{Conn: conn, release: h.endpoint.DecrementConn},
	}, nil
}

// target rewrites u onto the endpoint, keeping path and query.
func (h *Handle) target(u *url.URL, scheme string) *url.URL {
	base := h.endpoint.URL()
	return &url.URL{
		Scheme:   scheme,
		User:     base.User,
		Host:     base.Host,
		Path:     joinPath(base.Path, u.Path),
		RawQuery: u.RawQuery,
	}
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case a == "":
		return b
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func addForwardedFor(h http.Header, remoteAddr string) {
	clientIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return
	}
	if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
		clientIP = strings.Join(prior, ", ") + ", " + clientIP
	}
	h.Set("X-Forwarded-For", clientIP)
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	b.once.Do(b.release)
	return b.ReadCloser.Close()
}

// releasingSocket gives the endpoint's connection slot back on Close.
type releasingSocket struct {
	*websocket.Conn
	once    sync.Once
	release func()
}

func (s *releasingSocket) Close() error {
	s.once.Do(s.release)
	return s.Conn.Close()
}
