package mcpserver

import "time"

// timer measures elapsed wall-clock seconds for a single tool call, matching
// the float64-seconds unit [internal/observe.Metrics] histograms expect.
type timer struct {
	start time.Time
}

func newTimer() timer {
	return timer{start: time.Now()}
}

func (t timer) elapsed() float64 {
	return time.Since(t.start).Seconds()
}
