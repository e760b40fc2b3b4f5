//go:build windows

package scheduler

import (
	"github.com/pion/logging"
	"golang.org/x/sys/windows"
)

var (
	winmm           = windows.NewLazySystemDLL("winmm.dll")
	timeBeginPeriod = winmm.NewProc("timeBeginPeriod")
	timeEndPeriod   = winmm.NewProc("timeEndPeriod")
)

// beginTimerPeriod requests 1ms timer resolution while the worker runs.
func beginTimerPeriod(log logging.LeveledLogger) {
	if err := timeBeginPeriod.Find(); err != nil {
		log.Warnf("timer resolution unavailable: %v", err)
		return
	}
	if r, _, _ := timeBeginPeriod.Call(1); r != 0 {
		log.Warnf("timeBeginPeriod failed: %v", r)
	}
}

func endTimerPeriod(log logging.LeveledLogger) {
	if err := timeEndPeriod.Find(); err != nil {
		return
	}
	if r, _, _ := timeEndPeriod.Call(1); r != 0 {
		log.Warnf("timeEndPeriod failed: %v", r)
	}
}
