package logger

import (
	"fmt"
	"time"
)

type Spinner struct {
	Frames  []string
	Message string
	Console *Console
	Done    chan struct{}
	stopped chan struct{}
}

func (s *Spinner) Start() {
	if !s.Console.Animated {
		close(s.stopped)
		return
	}

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(s.Console.Output, "\r%s %s ", s.Frames[i%len(s.Frames)], s.Message)
			select {
			case <-s.Done:
				fmt.Fprint(s.Console.Output, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line and logs message as a success or an error.
// It must be called exactly once.
func (s *Spinner) Stop(success bool, message string) {
	close(s.Done)
	<-s.stopped

	if success {
		s.Console.Success("%s", message)
	} else {
		s.Console.Error("%s", message)
	}
}
