package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered logs before exit. Metrics are pull-based and
// need no flush. Call after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush telemetry: %w", err)
	}
	if err := logger.Sync(); err != nil && !unsyncable(err) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

// unsyncable reports errors from fsync on a terminal or pipe, where nothing is buffered.
func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)
}
