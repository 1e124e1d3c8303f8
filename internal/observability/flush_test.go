package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncErrWriter struct{ err error }

func (w syncErrWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w syncErrWriter) Sync() error                 { return w.err }

func loggerWithSyncErr(err error) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), syncErrWriter{err: err}, zap.InfoLevel)
	return zap.New(core)
}

func TestFlushTelemetry(t *testing.T) {
	tests := []struct {
		name    string
		logger  *zap.Logger
		wantErr bool
	}{
		{"nil logger", nil, false},
		{"clean sync", zap.NewNop(), false},
		{"terminal stderr", loggerWithSyncErr(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}), false},
		{"not a tty", loggerWithSyncErr(fmt.Errorf("sync: %w", syscall.ENOTTY)), false},
		{"disk error", loggerWithSyncErr(errors.New("disk full")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FlushTelemetry(context.Background(), tt.logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("FlushTelemetry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlushTelemetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := FlushTelemetry(ctx, zap.NewNop()); !errors.Is(err, context.Canceled) {
		t.Errorf("FlushTelemetry() error = %v, want context.Canceled", err)
	}
}
