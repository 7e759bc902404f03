package httpserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-gateway/internal/httpserver"
	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	DescribeTable("address validation",
		func(addr string, valid bool) {
			srv, err := httpserver.New(addr, noop)
			if valid {
				Expect(err).NotTo(HaveOccurred())
				Expect(srv.Addr()).To(Equal(addr))
				return
			}
			Expect(err).To(HaveOccurred())
			Expect(srv).To(BeNil())
		},
		Entry("host name", "localhost:9999", true),
		Entry("IP address", "127.0.0.1:9999", true),
		Entry("port only", ":9999", true),
		Entry("too many colons", "invalid:host:port", false),
		Entry("missing port", "localhost", false),
		Entry("empty port", "localhost:", false),
		Entry("bad host", "exa mple:80", false),
	)

	Context("server lifecycle", func() {
		var (
			srv      *httpserver.Server
			listener net.Listener
			served   chan error
		)

		start := func(handler http.Handler, opts ...httpserver.Option) {
			var err error
			srv, err = httpserver.New("127.0.0.1:0", handler, opts...)
			Expect(err).NotTo(HaveOccurred())

			listener, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			served = make(chan error, 1)
			go func() { served <- srv.Serve(listener) }()
		}

		AfterEach(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})

		It("handles requests", func() {
			start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("test"))
			}), httpserver.WithLogger(logger.Discard()), httpserver.WithTimeouts(time.Second, 0, time.Second))

			resp, err := http.Get("http://" + listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("shuts down gracefully", func() {
			start(noop, httpserver.WithShutdownTimeout(2*time.Second))

			Expect(srv.Shutdown(context.Background())).To(Succeed())
			Eventually(served).Should(Receive(BeNil()))
		})

		It("waits for in-flight requests", func() {
			release := make(chan struct{})
			start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-release
				_, _ = w.Write([]byte("done"))
			}))

			result := make(chan string, 1)
			go func() {
				defer GinkgoRecover()
				resp, err := http.Get("http://" + listener.Addr().String())
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				result <- string(body)
			}()

			time.Sleep(50 * time.Millisecond)
			shutdown := make(chan error, 1)
			go func() { shutdown <- srv.Shutdown(context.Background()) }()

			Consistently(shutdown, 100*time.Millisecond).ShouldNot(Receive())
			close(release)

			Eventually(result).Should(Receive(Equal("done")))
			Eventually(shutdown).Should(Receive(BeNil()))
		})
	})
})
