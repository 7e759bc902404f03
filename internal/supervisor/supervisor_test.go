package supervisor_test

import (
	"context"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-gateway/internal/supervisor"
	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

var _ = Describe("Supervisor", func() {
	Describe("Environ", func() {
		It("should add BROWSER_URL and upper-cased extras", func() {
			env := supervisor.Environ(
				[]string{"PATH=/bin", "BROWSER_URL=http://old"},
				"https://frontend.example",
				map[string]string{"mcp_port": "3000"},
			)

			Expect(env).To(Equal([]string{
				"PATH=/bin",
				"BROWSER_URL=https://frontend.example",
				"MCP_PORT=3000",
			}))
		})

		It("should keep the inherited BROWSER_URL when none is configured", func() {
			env := supervisor.Environ([]string{"BROWSER_URL=http://inherited"}, "", nil)
			Expect(env).To(ConsistOf("BROWSER_URL=http://inherited"))
		})

		It("should let explicit extras win over BROWSER_URL", func() {
			env := supervisor.Environ(nil, "https://a", map[string]string{"browser_url": "https://b"})
			Expect(env).To(ConsistOf("BROWSER_URL=https://b"))
		})
	})

	DescribeTable("HostPort",
		func(raw, expected string) {
			u, err := url.Parse(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(supervisor.HostPort(u)).To(Equal(expected))
		},
		Entry("explicit port", "http://localhost:3000", "localhost:3000"),
		Entry("http default", "http://instance", "instance:80"),
		Entry("https default", "https://instance", "instance:443"),
		Entry("ipv6", "http://[::1]:3000", "[::1]:3000"),
	)

	Describe("Start", func() {
		var listener net.Listener

		BeforeEach(func() {
			if _, err := exec.LookPath("sh"); err != nil {
				Skip("sh is not available")
			}

			var err error
			listener, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = listener.Close() })
		})

		It("should require a command", func() {
			_, err := supervisor.Start(context.Background(), supervisor.Options{})
			Expect(err).To(MatchError(supervisor.ErrNoCommand))
		})

		It("should pass the environment to the process", func() {
			out := filepath.Join(GinkgoT().TempDir(), "env")

			p, err := supervisor.Start(context.Background(), supervisor.Options{
				Command:        "sh",
				Args:           []string{"-c", `printf '%s %s' "$BROWSER_URL" "$MCP_MODE" > "$OUT"`},
				Env:            map[string]string{"mcp_mode": "http", "out": out},
				BrowserURL:     "https://frontend.example",
				Address:        listener.Addr().String(),
				StartupTimeout: 5 * time.Second,
				Logger:         logger.Discard(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Pid).To(BeNumerically(">", 0))

			Eventually(p.Exited()).Should(BeClosed())
			Expect(p.Err()).NotTo(HaveOccurred())

			data, err := os.ReadFile(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("https://frontend.example http"))
		})

		It("should stop the process on Terminate", func() {
			p, err := supervisor.Start(context.Background(), supervisor.Options{
				Command:        "sleep",
				Args:           []string{"30"},
				Address:        listener.Addr().String(),
				StartupTimeout: 5 * time.Second,
				Logger:         logger.Discard(),
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(p.Terminate(ctx)).To(Succeed())
			Expect(p.Exited()).To(BeClosed())
			Expect(p.Terminate(ctx)).To(Succeed())
		})

		It("should fail when the process exits before it is ready", func() {
			addr := listener.Addr().String()
			Expect(listener.Close()).To(Succeed())

			_, err := supervisor.Start(context.Background(), supervisor.Options{
				Command:        "sh",
				Args:           []string{"-c", "exit 3"},
				Address:        addr,
				StartupTimeout: 5 * time.Second,
				Logger:         logger.Discard(),
			})
			Expect(err).To(MatchError(supervisor.ErrExited))
		})

		It("should give up after the startup timeout", func() {
			addr := listener.Addr().String()
			Expect(listener.Close()).To(Succeed())

			start := time.Now()
			_, err := supervisor.Start(context.Background(), supervisor.Options{
				Command:        "sleep",
				Args:           []string{"30"},
				Address:        addr,
				StartupTimeout: 300 * time.Millisecond,
				Logger:         logger.Discard(),
			})
			Expect(err).To(MatchError(supervisor.ErrNotReady))
			Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
		})
	})
})
