package process

import (
	"os"
	"time"

	"go.uber.org/zap"
)

const DefaultWatchdogGrace = 15 * time.Second

// ArmWatchdog calls exit(0) once grace has elapsed, unless the returned
// func disarms it first. A nil exit means os.Exit.
func ArmWatchdog(grace time.Duration, logger *zap.Logger, exit func(int)) func() bool {
	if grace <= 0 {
		grace = DefaultWatchdogGrace
	}
	if exit == nil {
		exit = os.Exit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timer := time.AfterFunc(grace, func() {
		logger.Warn("process still alive after build, forcing exit", zap.Duration("grace", grace))
		_ = logger.Sync()
		exit(0)
	})
	return timer.Stop
}
