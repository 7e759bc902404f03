package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v3"
)

// BrowserURLEnv is the variable the instance process reads its frontend URL from.
const BrowserURLEnv = "BROWSER_URL"

var (
	ErrNoCommand = errors.New("no instance command configured")
	ErrExited    = errors.New("instance process exited")
	ErrNotReady  = errors.New("instance did not become ready")
)

type Options struct {
	Command    string
	Args       []string
	Env        map[string]string
	BrowserURL string
	// Address is the host:port that accepts connections once the instance is up.
	Address        string
	StartupTimeout time.Duration
	Stdout         io.Writer
	Stderr         io.Writer
	Logger         *slog.Logger
}

// Process is an instance process started by the gateway.
type Process struct {
	mutex   sync.Mutex
	command *exec.Cmd
	Pid     int
	exited  chan struct{}
	waitErr error
	logger  *slog.Logger
}

// Start launches the instance process and waits until Address accepts TCP
// connections. On failure the process is stopped before returning.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if opts.Command == "" {
		return nil, ErrNoCommand
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = Environ(os.Environ(), opts.BrowserURL, opts.Env)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	p := &Process{
		command: cmd,
		Pid:     cmd.Process.Pid,
		exited:  make(chan struct{}),
		logger:  opts.Logger.With(slog.String("command", opts.Command)),
	}
	p.logger.Info("Started instance process", slog.Int("pid", p.Pid))

	go p.wait()

	if opts.Address == "" {
		return p, nil
	}

	if err := p.waitReady(ctx, opts.Address, opts.StartupTimeout); err != nil {
		_ = p.Terminate(context.Background())
		return nil, err
	}

	p.logger.Info("Instance is accepting connections", slog.String("address", opts.Address))
	return p, nil
}

func (p *Process) wait() {
	err := p.command.Wait()

	p.mutex.Lock()
	p.waitErr = err
	p.mutex.Unlock()
	close(p.exited)

	if err != nil {
		p.logger.Warn("Instance process exited", slog.Int("pid", p.Pid), slog.Any("err", err))
		return
	}
	p.logger.Info("Instance process exited", slog.Int("pid", p.Pid))
}

// Exited is closed once the process has ended.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err returns the exit error once the process has ended.
func (p *Process) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.waitErr
}

// Terminate asks the process to stop and kills it when ctx is done first.
// Terminating an exited process is a no-op.
func (p *Process) Terminate(ctx context.Context) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := p.command.Process.Signal(syscall.SIGTERM); err != nil {
		if err := p.command.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}

	select {
	case <-p.exited:
	case <-ctx.Done():
		p.logger.Warn("Instance process ignored SIGTERM, killing it", slog.Int("pid", p.Pid))
		if err := p.command.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-p.exited
	}

	p.logger.Info("Stopped instance process", slog.Int("pid", p.Pid))
	return nil
}

func (p *Process) waitReady(ctx context.Context, address string, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout

	var lastErr error
	op := func() error {
		conn, err := net.DialTimeout("tcp", address, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err

		select {
		case <-p.exited:
			return backoff.Permanent(ErrExited)
		default:
			return err
		}
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrExited):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s after %s: %v", ErrNotReady, address, timeout, lastErr)
}

// Environ returns base with BROWSER_URL and extra applied. Keys of extra are
// upper-cased; later settings replace earlier ones.
func Environ(base []string, browserURL string, extra map[string]string) []string {
	overrides := make(map[string]string, len(extra)+1)
	if browserURL != "" {
		overrides[BrowserURLEnv] = browserURL
	}
	for k, v := range extra {
		overrides[strings.ToUpper(k)] = v
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}

	return env
}

// HostPort is the dial address of u, with the scheme's default port when u
// has none.
func HostPort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
