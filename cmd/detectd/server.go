package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// drainTimeout bounds the wait for cancelled requests to unwind.
const drainTimeout = 10 * time.Second

type drainer interface {
	Drain(ctx context.Context) error
}

// shutdown stops srv gracefully within grace. Requests still running after
// that are cancelled through cancelRequests and drained, so their spools are
// removed before the process exits.
//
// Arguments:
//   - srv: The server; its BaseContext must derive from the context cancelRequests cancels.
//   - d: Reports when every handler has returned.
//   - cancelRequests: Cancels every request context.
//   - grace: How long in-flight requests may run on.
//   - log: The logger.
//
// Returns:
//   - error: An error if handlers were still running after drainTimeout.
func shutdown(srv *http.Server, d drainer, cancelRequests context.CancelFunc, grace time.Duration, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown incomplete, cancelling in-flight requests", zap.Error(err))
		cancelRequests()
		srv.Close()
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := d.Drain(drainCtx); err != nil {
		return errors.Wrap(err, "requests still running at exit")
	}
	return nil
}
