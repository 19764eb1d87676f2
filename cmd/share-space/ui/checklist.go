package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Checklist redraws step snapshots in place on a terminal. Running steps
// get a braille spinner and finished steps a check mark or a red cross.
// Steps a rollback undid get a yellow arrow, or a red bang when the undo
// itself failed. Close names whatever a failed undo left on the host.
type Checklist struct {
	out    io.Writer
	frames spinner.Spinner

	mu    sync.Mutex
	steps []stepState
	drawn int
	frame int

	stop chan struct{}
	once sync.Once
}

func NewChecklist(out io.Writer) *Checklist {
	return &Checklist{out: out, frames: spinner.Dot, stop: make(chan struct{})}
}

func (c *Checklist) OnSnapshot(snap stepSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.steps == nil {
		go c.animate()
	}
	c.steps = snap.Steps
	c.redraw()
}

// Close stops the animation, leaves the last frame on screen and lists
// top-level steps whose undo failed.
func (c *Checklist) Close() {
	c.once.Do(func() {
		close(c.stop)

		c.mu.Lock()
		defer c.mu.Unlock()
		if left := c.leftBehind(); len(left) > 0 {
			fmt.Fprintln(c.out, WarnMsg("rollback incomplete, check by hand: %s", strings.Join(left, ", ")))
		}
	})
}

func (c *Checklist) animate() {
	ticker := time.NewTicker(c.frames.FPS)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.frame++
			c.redraw()
			c.mu.Unlock()
		}
	}
}

// redraw moves the cursor back over the previous frame and prints every
// step again, blanking lines the new frame no longer uses. Caller must
// hold c.mu.
func (c *Checklist) redraw() {
	if len(c.steps) == 0 && c.drawn == 0 {
		return
	}
	if c.drawn > 0 {
		fmt.Fprintf(c.out, "\033[%dA", c.drawn)
	}
	for _, s := range c.steps {
		fmt.Fprintf(c.out, "\r%s\033[K\n", c.line(s))
	}
	for i := len(c.steps); i < c.drawn; i++ {
		fmt.Fprint(c.out, "\r\033[K\n")
	}
	c.drawn = max(c.drawn, len(c.steps))
}

func (c *Checklist) line(s stepState) string {
	icon, label := c.stepStyle(s)
	line := stepIndent(s) + icon + " " + label
	if s.Message != "" {
		line += " " + Muted(s.Message)
	}
	return line
}

func (c *Checklist) stepStyle(s stepState) (icon, label string) {
	switch s.Status {
	case stepRunning:
		return Accent(c.frames.Frames[c.frame%len(c.frames.Frames)]), s.Title
	case stepDone:
		return Success("✓"), s.Title
	case stepFailed:
		return ErrorStyle.Render("✗"), ErrorStyle.Render(s.Title)
	case stepCompensated:
		return Warn("↺"), Muted(s.Title)
	case stepCompensationFailed:
		return ErrorStyle.Render("!"), ErrorStyle.Render(s.Title + " (left behind)")
	default:
		return Muted("●"), Muted(s.Title)
	}
}

// leftBehind returns the titles of planned steps whose undo failed.
// Caller must hold c.mu.
func (c *Checklist) leftBehind() []string {
	var left []string
	for _, s := range c.steps {
		if s.ParentID == "" && !s.synthetic && s.Status == stepCompensationFailed {
			left = append(left, s.Title)
		}
	}
	return left
}

// stepIndent nests a step two spaces per ancestor under a two space margin.
func stepIndent(s stepState) string {
	depth := 0
	if s.ParentID != "" {
		depth = 1 + strings.Count(s.ParentID, "/")
	}
	return strings.Repeat("  ", depth+1)
}
