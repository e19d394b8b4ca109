package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

const spinnerInterval = 80 * time.Millisecond

// Spinner shows scan progress on a terminal writer, typically stderr:
// an animated frame, the current phase and the elapsed time. Update may be
// called from any goroutine.
type Spinner struct {
	w io.Writer

	mu      sync.Mutex
	message string
	started time.Time
	width   int
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewSpinner creates a spinner that writes to w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// Start begins the animation. Starting a running spinner only changes its
// message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.done = make(chan struct{})
	s.wg.Go(s.loop)
}

// Update replaces the displayed message.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the line. It is idempotent, and no
// frame is written after it returns.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	fmt.Fprintf(s.w, "\r%*s\r", s.width, "")
	s.width = 0
	s.mu.Unlock()
}

func (s *Spinner) loop() {
	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			return
		case <-tick.C:
			s.draw(spinnerFrames[i%len(spinnerFrames)])
		}
	}
}

func (s *Spinner) draw(frame rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("%c %s (%.1fs)", frame, s.message, time.Since(s.started).Seconds())
	n := len([]rune(line))
	// pad over leftovers of a longer previous line
	fmt.Fprintf(s.w, "\r%s%*s", line, max(s.width-n, 0), "")
	s.width = max(s.width, n)
}
