package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/instance-gateway/internal/metrics"
	"github.com/angeloszaimis/instance-gateway/internal/wsbridge"
)

const upgradeWebSocket = "websocket"

const (
	msgForwardFailed = "Error forwarding request"
	msgUpgradeFailed = "Error forwarding WebSocket upgrade"
)

var errNoResponse = errors.New("instance returned no response")

// Dispatcher forwards every request to the instance registered under a fixed
// logical name and relays the answer, including upgraded WebSocket
// connections.
type Dispatcher struct {
	name      string
	router    Router
	logger    *slog.Logger
	collector *metrics.Collector
	upgrader  websocket.Upgrader
}

// New returns a dispatcher for the instance called name. collector may be nil.
func New(name string, router Router, logger *slog.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		name:      name,
		router:    router,
		logger:    logger,
		collector: collector,
		upgrader: websocket.Upgrader{
			// the instance saw the Origin header and accepted the handshake
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Dispatch resolves the instance, forwards r exactly once and returns the
// response to relay. It never fails: forwarding errors become a 500 response
// with a plain text description.
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request) *Response {
	return d.dispatch(ctx, r, d.requestLogger())
}

// ServeHTTP writes the dispatched response to w. A relayed socket upgrades
// the caller and is bridged until either side closes; anything else is copied
// with hop-by-hop headers dropped and the body flushed as it streams.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := d.requestLogger()
	resp := d.dispatch(r.Context(), r, log)

	if resp.Socket != nil && resp.StatusCode == http.StatusSwitchingProtocols {
		d.relayUpgrade(w, r, resp.Socket, log)
		return
	}

	d.writeResponse(w, resp, log)
}

func (d *Dispatcher) requestLogger() *slog.Logger {
	return d.logger.With(slog.String("request_id", uuid.NewString()))
}

func (d *Dispatcher) dispatch(ctx context.Context, r *http.Request, log *slog.Logger) *Response {
	start := time.Now()
	upgrade := r.Header.Get("Upgrade")
	isWebSocket := upgrade == upgradeWebSocket

	log.Info("Received request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
		slog.Bool("websocket", isWebSocket),
		slog.String("upgrade", upgrade),
		slog.String("connection", r.Header.Get("Connection")))

	d.collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Target: d.name})

	failure := msgForwardFailed
	if isWebSocket {
		failure = msgUpgradeFailed
		log.Info("WebSocket upgrade detected", slog.String("path", r.URL.Path))
	}

	resp, err := d.forward(ctx, r)
	if err != nil {
		log.Error(failure, slog.String("instance", d.name), slog.Any("err", err))
		d.collector.Emit(metrics.MetricEvent{
			Type:     metrics.EventForwardFailed,
			Target:   d.name,
			Duration: time.Since(start),
		})
		return errorResponse(r, failure, err)
	}

	if isWebSocket {
		if resp.Socket != nil {
			log.Info("Instance accepted WebSocket upgrade, relaying socket")
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			d.collector.Emit(metrics.MetricEvent{Type: metrics.EventUpgradeRelayed, Target: d.name})
			d.completed(start, http.StatusSwitchingProtocols)
			return switchingProtocols(r, resp.Socket)
		}

		if resp.StatusCode == http.StatusSwitchingProtocols {
			log.Warn("Instance returned 101 without a WebSocket, relaying response as is")
		}

		log.Info("Instance response",
			slog.Int("status", resp.StatusCode),
			slog.Any("headers", resp.Header))
		d.completed(start, resp.StatusCode)
		return resp
	}

	log.Info("HTTP response", slog.Int("status", resp.StatusCode))
	d.completed(start, resp.StatusCode)
	return resp
}

func (d *Dispatcher) forward(ctx context.Context, r *http.Request) (*Response, error) {
	inst, err := d.router.Resolve(d.name)
	if err != nil {
		return nil, err
	}

	resp, err := inst.Forward(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Response == nil {
		return nil, errNoResponse
	}

	return resp, nil
}

func (d *Dispatcher) completed(start time.Time, status int) {
	d.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Target:     d.name,
		Duration:   time.Since(start),
		StatusCode: status,
	})
}

func (d *Dispatcher) relayUpgrade(w http.ResponseWriter, r *http.Request, socket Socket, log *slog.Logger) {
	var header http.Header
	if proto := socket.Subprotocol(); proto != "" {
		header = http.Header{"Sec-Websocket-Protocol": {proto}}
	}

	caller, err := d.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already answered the caller with an HTTP error.
		log.Error("Could not upgrade caller connection", slog.Any("err", err))
		_ = socket.Close()
		return
	}

	start := time.Now()
	err = wsbridge.Bridge(caller, socket)
	log.Info("WebSocket closed",
		slog.Duration("duration", time.Since(start)),
		slog.Any("err", err))
}

func (d *Dispatcher) writeResponse(w http.ResponseWriter, resp *Response, log *slog.Logger) {
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	header := w.Header()
	for k, vv := range resp.Header {
		header[k] = append([]string(nil), vv...)
	}
	RemoveHopHeaders(header)

	w.WriteHeader(resp.StatusCode)
	if resp.Body == nil {
		return
	}

	if n, err := copyBody(w, resp.Body); err != nil {
		log.Warn("Response body relay interrupted",
			slog.Int64("bytes", n),
			slog.Any("err", err))
	}
}

func errorResponse(r *http.Request, prefix string, err error) *Response {
	body := fmt.Sprintf("%s: %s", prefix, err.Error())
	return &Response{Response: &http.Response{
		Status:        "500 Internal Server Error",
		StatusCode:    http.StatusInternalServerError,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}}
}

func switchingProtocols(r *http.Request, socket Socket) *Response {
	return &Response{
		Response: &http.Response{
			Status:     "101 Switching Protocols",
			StatusCode: http.StatusSwitchingProtocols,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
			Body:       http.NoBody,
			Request:    r,
		},
		Socket: socket,
	}
}
