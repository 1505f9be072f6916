package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry syncs the logger once in-flight requests have drained.
// Metrics are scraped, so there is nothing to push. Sync errors from a
// stderr that cannot be fsynced (a terminal or pipe) are ignored.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !unsyncable(err) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)
}
