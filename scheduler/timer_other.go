//go:build !windows

package scheduler

import "github.com/pion/logging"

func beginTimerPeriod(logging.LeveledLogger) {}

func endTimerPeriod(logging.LeveledLogger) {}
