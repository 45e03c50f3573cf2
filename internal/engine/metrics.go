package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coreobjects/coreobjects/pkg/logger"
)

var (
	engineMetrics sync.Once

	engineTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coreobjects",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Number of engine ticks run",
		})
	engineObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coreobjects",
			Subsystem: "engine",
			Name:      "objects",
			Help:      "Number of objects in the universe after the last tick",
		})
)

func registerMetrics() {
	engineMetrics.Do(func() {
		prometheus.MustRegister(engineTicks)
		prometheus.MustRegister(engineObjects)
	})
}

// serveMetrics exposes the default prometheus registry on l until ctx is
// cancelled
func serveMetrics(ctx context.Context, l net.Listener, path string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	log.Info("Serving metrics",
		logger.WithField("address", l.Addr().String()),
		logger.WithField("path", path))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown failed", logger.WithField("error", err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
