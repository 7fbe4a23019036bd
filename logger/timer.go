package logger

import "time"

type Timer struct {
	StartTime time.Time
	Name      string
	Console   *Console
}

// End reports the elapsed time at debug level and returns it.
func (t *Timer) End() time.Duration {
	duration := time.Since(t.StartTime)
	t.Console.Debug("%s completed in %v", t.Name, duration.Round(time.Millisecond))
	return duration
}
