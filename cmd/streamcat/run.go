package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/logger"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
	"github.com/vnykmshr/streamcore/pkg/streaming/writer"
)

const metricsShutdownTimeout = 5 * time.Second

func run(ctx context.Context, cfg Config, path string, stdin io.Reader, stdout io.Writer) error {
	log, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return scerrors.NewValidationError("streamcat", "Log", cfg.LogLevel+"/"+cfg.LogFormat, err.Error())
	}
	defer func() { _ = log.Sync() }()

	var grep *regexp.Regexp
	if cfg.Grep != "" {
		grep, err = regexp.Compile(cfg.Grep)
		if err != nil {
			return scerrors.NewValidationError("streamcat", "Grep", cfg.Grep, err.Error())
		}
	}

	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return scerrors.NewOperationError("streamcat", "open", err).WithContext(path)
		}
		defer f.Close()
		in = f
	}

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector())
		reg = metrics.NewRegistry(promReg)

		stop, err := serveMetrics(cfg.MetricsAddr, promReg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts := []stream.Option{
		stream.WithHighWaterMark(cfg.HighWaterMark),
		stream.WithObjectMode(),
		stream.WithLogger(log),
		stream.WithMetrics(reg),
	}

	out, err := writer.NewWithConfig(stdout, writer.Config{
		Name:    "stdout",
		Logger:  log,
		Metrics: reg,
	})
	if err != nil {
		return err
	}

	stages := []any{
		stream.FromReader(in, stream.WithName("input"), stream.WithChunkSize(cfg.ChunkSize), stream.WithLogger(log), stream.WithMetrics(reg)),
		stream.Lines(append(opts, stream.WithName("lines"))...),
	}
	if grep != nil {
		stages = append(stages, stream.Filter(grep.MatchString, append(opts, stream.WithName("grep"))...))
	}
	if cfg.Upper {
		stages = append(stages, stream.Map(strings.ToUpper, append(opts, stream.WithName("upper"))...))
	}
	if cfg.Number {
		n := 0
		stages = append(stages, stream.Map(func(line string) string {
			n++
			return fmt.Sprintf("%6d\t%s", n, line)
		}, append(opts, stream.WithName("number"))...))
	}
	stages = append(stages,
		stream.Map(func(line string) []byte { return []byte(line + "\n") }, append(opts, stream.WithName("encode"))...),
		out,
	)

	log.Debug("streaming", zap.String("input", path), zap.Int("stages", len(stages)))
	if err := stream.Pipeline(ctx, stages...); err != nil {
		return err
	}

	stats := out.Stats()
	log.Info("stream complete",
		zap.String("input", path),
		zap.Int64("bytes", stats.BytesWritten),
		zap.Int64("writes", stats.WriteCount),
		zap.Int64("retries", stats.RetryCount),
	)
	return nil
}

// serveMetrics serves reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
		<-done
	}, nil
}
