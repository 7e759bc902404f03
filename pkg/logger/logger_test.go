package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

var _ = Describe("Logger", func() {
	var (
		buf bytes.Buffer
		ctx context.Context
	)

	BeforeEach(func() {
		buf.Reset()
		ctx = context.Background()
	})

	Describe("New", func() {
		DescribeTable("level handling",
			func(level string, enabled, disabled slog.Level) {
				log := logger.New(level, false, "dev", &buf)
				Expect(log.Enabled(ctx, enabled)).To(BeTrue())
				Expect(log.Enabled(ctx, disabled)).To(BeFalse())
			},
			Entry("debug", "debug", slog.LevelDebug, slog.LevelDebug-1),
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
			Entry("mixed case", "WARN", slog.LevelWarn, slog.LevelInfo),
			Entry("unknown falls back to info", "verbose", slog.LevelInfo, slog.LevelDebug),
		)

		It("should write JSON records in prod", func() {
			log := logger.New("info", false, "prod", &buf)
			log.Info("forwarded", slog.Int("status", 200))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "forwarded"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("status", BeNumerically("==", 200)))
		})

		It("should write text records outside prod", func() {
			log := logger.New("info", false, "staging", &buf)
			log.Info("forwarded")

			Expect(buf.String()).To(ContainSubstring("msg=forwarded"))
			Expect(buf.String()).To(ContainSubstring("environment=staging"))
		})

		It("should default to stdout when no writer is given", func() {
			Expect(logger.New("info", true, "dev", nil)).NotTo(BeNil())
		})
	})

	Describe("Discard", func() {
		It("should drop every record", func() {
			log := logger.Discard()
			Expect(log.Enabled(ctx, slog.LevelError)).To(BeFalse())
		})
	})
})
