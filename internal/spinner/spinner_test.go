package spinner

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantFrames []string
		wantDelay  time.Duration
	}{
		{"defaults", nil, DefaultFrames, DefaultDelay},
		{"custom frames", []Option{WithFrames("-", "+")}, []string{"-", "+"}, DefaultDelay},
		{"empty frames ignored", []Option{WithFrames()}, DefaultFrames, DefaultDelay},
		{"custom delay", []Option{WithDelay(5 * time.Millisecond)}, DefaultFrames, 5 * time.Millisecond},
		{"zero delay ignored", []Option{WithDelay(0)}, DefaultFrames, DefaultDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(context.Background(), &bytes.Buffer{}, "Loading catalog...", tt.opts...)
			if s.message != "Loading catalog..." {
				t.Errorf("message = %q", s.message)
			}
			if strings.Join(s.frames, "") != strings.Join(tt.wantFrames, "") {
				t.Errorf("frames = %v, want %v", s.frames, tt.wantFrames)
			}
			if s.delay != tt.wantDelay {
				t.Errorf("delay = %v, want %v", s.delay, tt.wantDelay)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	var buf syncBuffer
	s := New(context.Background(), &buf, "Vectorizing 3 games...", WithDelay(10*time.Millisecond))

	if s.IsActive() {
		t.Error("spinner should not be active before Start()")
	}

	s.Start()
	s.Start() // second start is a no-op
	if !s.IsActive() {
		t.Error("spinner should be active after Start()")
	}

	time.Sleep(60 * time.Millisecond)
	s.Stop()
	s.Stop()

	if s.IsActive() {
		t.Error("spinner should not be active after Stop()")
	}

	output := buf.String()
	if !strings.Contains(output, "Vectorizing 3 games...") {
		t.Errorf("output %q missing message", output)
	}
	if !strings.ContainsAny(output, strings.Join(DefaultFrames, "")) {
		t.Errorf("output %q missing frames", output)
	}
	if !strings.HasSuffix(output, "\r") {
		t.Errorf("output %q should end with a carriage return", output)
	}
}

func TestUpdateMessage(t *testing.T) {
	var buf syncBuffer
	s := New(context.Background(), &buf, "Loading catalog...", WithDelay(5*time.Millisecond))
	s.Start()
	s.UpdateMessage("Vectorizing 10 games...")
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if !strings.Contains(buf.String(), "Vectorizing 10 games...") {
		t.Errorf("output %q missing updated message", buf.String())
	}
}

func TestStopWith(t *testing.T) {
	var buf syncBuffer
	s := New(context.Background(), &buf, "Loading catalog...", WithDelay(5*time.Millisecond))
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.StopWith("Ready: 3 games")

	if !strings.HasSuffix(buf.String(), "\rReady: 3 games\n") {
		t.Errorf("output %q should end with the final message", buf.String())
	}

	// stopping again writes nothing
	before := buf.String()
	s.StopWith("again")
	s.Stop()
	if buf.String() != before {
		t.Errorf("stopped spinner wrote %q", strings.TrimPrefix(buf.String(), before))
	}
}

func TestStopWithoutStart(t *testing.T) {
	var buf syncBuffer
	s := New(context.Background(), &buf, "Loading catalog...")
	s.Stop()

	if s.IsActive() {
		t.Error("spinner should not be active")
	}
	if buf.String() != "" {
		t.Errorf("unstarted spinner wrote %q", buf.String())
	}
}

func TestContextCancelStopsAnimation(t *testing.T) {
	var buf syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, &buf, "Loading catalog...", WithDelay(5*time.Millisecond))
	s.Start()
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	before := buf.String()
	time.Sleep(30 * time.Millisecond)
	if buf.String() != before {
		t.Error("spinner kept drawing after context cancellation")
	}
	s.Stop()
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(buffer) = true")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true")
	}
}
