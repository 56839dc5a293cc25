package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/metrics"
)

var (
	metricsMu     sync.Mutex
	metricsServer *http.Server
)

// startMetricsServer serves /metrics on addr until stopMetricsServer.
func startMetricsServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsMu.Lock()
	metricsServer = srv
	metricsMu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()
	logger.Info("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

func stopMetricsServer() {
	metricsMu.Lock()
	srv := metricsServer
	metricsServer = nil
	metricsMu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown: %v", err)
	}
}
