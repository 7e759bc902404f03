package instance

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/instance-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/instance-gateway/internal/dispatcher"
	"github.com/angeloszaimis/instance-gateway/internal/placement"
	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

var _ dispatcher.Router = (*Router)(nil)

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithBreakers guards every endpoint with a breaker from registry.
func WithBreakers(registry *circuitbreaker.Registry) Option {
	return func(r *Router) { r.breakers = registry }
}

func WithVirtualNodes(n int) Option {
	return func(r *Router) { r.virtualNodes = n }
}

func WithTransport(t http.RoundTripper) Option {
	return func(r *Router) { r.transport = t }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(r *Router) { r.dialer = d }
}

// Router places logical instance names on the configured endpoints and hands
// out one Handle per name.
type Router struct {
	ring         *placement.Ring[*Endpoint]
	breakers     *circuitbreaker.Registry
	virtualNodes int
	transport    http.RoundTripper
	dialer       *websocket.Dialer
	logger       *slog.Logger

	mutex   sync.RWMutex
	handles map[string]*Handle
}

func NewRouter(endpoints []*Endpoint, opts ...Option) (*Router, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	r := &Router{
		virtualNodes: placement.DefaultVirtualNodes,
		logger:       logger.Discard(),
		handles:      make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		r.transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if r.dialer == nil {
		r.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		}
	}

	r.ring = placement.New(endpoints, r.virtualNodes)
	return r, nil
}

// Resolve returns the handle for name. Repeated calls with the same name
// return the same handle.
func (r *Router) Resolve(name string) (dispatcher.Instance, error) {
	h, err := r.Handle(name)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Router) Handle(name string) (*Handle, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	r.mutex.RLock()
	h, exists := r.handles[name]
	r.mutex.RUnlock()
	if exists {
		return h, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if h, exists := r.handles[name]; exists {
		return h, nil
	}

	endpoint, ok := r.ring.Locate(name)
	if !ok {
		return nil, ErrNoEndpoints
	}

	h = &Handle{
		name:      name,
		endpoint:  endpoint,
		transport: r.transport,
		dialer:    r.dialer,
		logger:    r.logger.With(slog.String("instance", name), slog.String("endpoint", endpoint.Key())),
	}
	if r.breakers != nil {
		h.breaker = r.breakers.GetBreaker(endpoint.Key())
	}
	r.handles[name] = h

	r.logger.Info("Instance placed",
		slog.String("instance", name),
		slog.String("endpoint", endpoint.Key()))

	return h, nil
}

// Endpoints returns every endpoint the router places names on.
func (r *Router) Endpoints() []*Endpoint {
	return r.ring.Members()
}
