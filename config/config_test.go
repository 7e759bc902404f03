package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-gateway/config"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	writeConfig := func(content string) string {
		path := filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			var path string

			BeforeEach(func() {
				path = writeConfig(`
server:
  address: ":8081"
  environment: "prod"

instance:
  name: "mcp"
  endpoints:
    - "http://localhost:3000"
    - "http://localhost:3001"
  command: "node"
  args: ["dist/index.js"]
  env:
    PORT: "3000"

health_check:
  interval: "10s"
  path: "/healthz"

logging:
  level: "debug"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse the instance section", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Instance.Name).To(Equal("mcp"))
				Expect(cfg.Instance.Endpoints).To(ConsistOf("http://localhost:3000", "http://localhost:3001"))
				Expect(cfg.Instance.Command).To(Equal("node"))
				Expect(cfg.Instance.Args).To(Equal([]string{"dist/index.js"}))
				Expect(cfg.Instance.Env).To(HaveKeyWithValue("port", "3000"))
			})

			It("should keep defaults for unset keys", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Instance.BrowserURL).To(Equal(config.DefaultBrowserURL))
				Expect(cfg.Placement.VirtualNodes).To(Equal(100))
				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(5))
				Expect(cfg.HealthCheck.Path).To(Equal("/healthz"))
			})
		})

		Context("without a config file", func() {
			BeforeEach(func() {
				Expect(os.Chdir(tempDir)).To(Succeed())
			})

			It("should use defaults", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Instance.Name).To(Equal(config.DefaultInstanceName))
				Expect(cfg.Instance.Endpoints).To(Equal([]string{"http://localhost:3000"}))
			})

			It("should take BROWSER_URL from the environment", func() {
				GinkgoT().Setenv("BROWSER_URL", "https://viewer.example.com")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Instance.BrowserURL).To(Equal("https://viewer.example.com"))
			})

			It("should take nested keys from the environment", func() {
				GinkgoT().Setenv("SERVER_ADDRESS", "127.0.0.1:8181")
				GinkgoT().Setenv("LOGGING_LEVEL", "warn")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:8181"))
				Expect(cfg.Logging.Level).To(Equal("warn"))
			})
		})

		Context("with invalid values", func() {
			DescribeTable("should reject the configuration",
				func(content string) {
					_, err := config.Load(writeConfig(content))
					Expect(err).To(HaveOccurred())
				},
				Entry("unknown environment", "server:\n  environment: \"qa\"\n"),
				Entry("bad address", "server:\n  address: \"invalid:host:port\"\n"),
				Entry("non http endpoint", "instance:\n  endpoints: [\"ftp://localhost:21\"]\n"),
				Entry("endpoint without host", "instance:\n  endpoints: [\"http://\"]\n"),
				Entry("bad interval", "health_check:\n  interval: \"soon\"\n"),
				Entry("relative health path", "health_check:\n  path: \"health\"\n"),
				Entry("negative threshold", "circuit_breaker:\n  failure_threshold: -1\n"),
				Entry("unknown log level", "logging:\n  level: \"trace\"\n"),
				Entry("empty instance name", "instance:\n  name: \"\"\n"),
			)

			It("should fail on an unreadable explicit file", func() {
				_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Duration", func() {
		It("should parse validated durations", func() {
			Expect(config.Duration("1m")).To(Equal(time.Minute))
		})

		It("should treat empty as zero", func() {
			Expect(config.Duration("")).To(BeZero())
		})
	})
})
