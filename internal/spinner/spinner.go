// Package spinner draws a progress indicator on stderr while the catalog
// loads and the engine vectorizes it.
package spinner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// DefaultFrames are the animation frames used unless WithFrames is given.
var DefaultFrames = []string{"◜", "◠", "◝", "◞", "◡", "◟"}

// DefaultDelay is the time between frames.
const DefaultDelay = 100 * time.Millisecond

// Spinner is a spinning progress indicator.
type Spinner struct {
	frames  []string
	delay   time.Duration
	writer  io.Writer
	mu      sync.RWMutex
	active  bool
	message string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Spinner.
type Option func(*Spinner)

// WithFrames replaces the animation frames. An empty list is ignored.
func WithFrames(frames ...string) Option {
	return func(s *Spinner) {
		if len(frames) > 0 {
			s.frames = frames
		}
	}
}

// WithDelay sets the time between frames. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(s *Spinner) {
		if d > 0 {
			s.delay = d
		}
	}
}

// New creates a stopped spinner showing message.
// Cancelling ctx stops the animation goroutine.
func New(ctx context.Context, writer io.Writer, message string, opts ...Option) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	s := &Spinner{
		frames:  DefaultFrames,
		delay:   DefaultDelay,
		writer:  writer,
		message: message,
		ctx:     spinnerCtx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true

	s.wg.Add(1)
	go s.run()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	if !s.halt() {
		return
	}
	s.clearLine()
}

// StopWith halts the animation and replaces it with a final message line.
func (s *Spinner) StopWith(message string) {
	if !s.halt() {
		return
	}
	s.clearLine()
	fmt.Fprintln(s.writer, message)
}

// halt stops the goroutine and reports whether the spinner was running.
func (s *Spinner) halt() bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	return true
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (s *Spinner) clearLine() {
	// erase the whole line on a terminal; redirected output only gets a CR
	if IsTerminal(s.writer) {
		fmt.Fprint(s.writer, "\r\033[2K")
	} else {
		fmt.Fprint(s.writer, "\r")
	}
}

// IsActive reports whether the spinner is running.
func (s *Spinner) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UpdateMessage replaces the text shown next to the frame.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) run() {
	defer s.wg.Done()

	frameIndex := 0
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			frame := s.frames[frameIndex%len(s.frames)]
			message := s.message
			s.mu.RUnlock()

			fmt.Fprintf(s.writer, "\r%s %s", frame, message)
			frameIndex++
		}
	}
}
