// Package signals handles process signals: graceful shutdown and reload requests.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultPreStopSleep leaves time to the load balancer to observe the failing readiness probe.
	DefaultPreStopSleep = 3 * time.Second
)

// Shutdown drains the HTTP server once a stop signal is received.
type Shutdown struct {
	logger                logger.Logger
	serverShutdownTimeout time.Duration
	preStopSleep          time.Duration
}

// NewShutdown creates a new Shutdown instance.
func NewShutdown(serverShutdownTimeout, preStopSleep time.Duration, log logger.Logger) (*Shutdown, error) {
	srv := &Shutdown{
		logger:                log,
		serverShutdownTimeout: serverShutdownTimeout,
		preStopSleep:          preStopSleep,
	}

	return srv, nil
}

// Graceful shuts down the server gracefully.
func (s *Shutdown) Graceful(stopCh <-chan struct{}, httpServer *echo.Echo, healthy, ready *int32) {
	ctx := context.Background()

	// wait for SIGTERM or SIGINT
	<-stopCh
	ctx, cancel := context.WithTimeout(ctx, s.serverShutdownTimeout)
	defer cancel()

	// all calls to /live and /ready will fail from now on
	atomic.StoreInt32(healthy, 0)
	atomic.StoreInt32(ready, 0)

	s.logger.InfoWithContext(ctx, "Shutting down HTTP server", zap.Duration("timeout", s.serverShutdownTimeout))

	// There could be a period where a terminating pod may still receive requests. Implementing a brief wait can mitigate this.
	// See: https://kubernetes.io/docs/concepts/workloads/pods/pod-lifecycle/#pod-termination
	// the readiness check interval must be lower than the timeout
	if s.preStopSleep > 0 {
		time.Sleep(s.preStopSleep)
	}

	// determine if the http server was started
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.WarnWithContext(ctx, "HTTP server graceful shutdown failed", zap.Error(err))
		}
	}
}

// SetupSignalHandler returns a channel closed on SIGINT or SIGTERM. A second
// signal exits the process immediately.
func SetupSignalHandler() <-chan struct{} {
	stop := make(chan struct{})
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		close(stop)
		<-c
		os.Exit(1)
	}()
	return stop
}

// NotifyReload returns a channel receiving SIGHUP.
func NotifyReload() <-chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)
	return c
}
