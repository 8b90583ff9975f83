package robot

import (
	"time"

	"golang.org/x/time/rate"
)

// faultLog throttles warnings raised inside the control cycle. A sensor that
// fails every cycle would otherwise write 50 lines a second.
type faultLog struct {
	log        Logger
	limiter    *rate.Limiter
	suppressed int
}

func newFaultLog(log Logger, every time.Duration, burst int) *faultLog {
	return &faultLog{
		log:     log,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Warn never blocks. Messages over the rate are counted and the count is
// reported with the next message that gets through.
func (f *faultLog) Warn(msg string, args ...any) {
	if !f.limiter.Allow() {
		f.suppressed++
		return
	}
	if f.suppressed > 0 {
		msg += " (%d similar suppressed)"
		args = append(args, f.suppressed)
		f.suppressed = 0
	}
	f.log.Warn(msg, args...)
}
