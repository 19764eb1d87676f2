// Package hostexectest provides a scripted hostexec.Runner for tests.
package hostexectest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Response is the scripted result for commands matching a prefix.
type Response struct {
	Output string
	Err    error
}

// Recorder records every command and answers from a prefix table.
// Commands without a matching prefix succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	calls     []string
	responses []scripted
}

type scripted struct {
	prefix string
	resp   Response
}

// On scripts the response for any command line starting with prefix.
// Later registrations take precedence over earlier ones.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, scripted{prefix: prefix, resp: resp})
	return r
}

// Fail scripts an error for commands starting with prefix.
func (r *Recorder) Fail(prefix string) *Recorder {
	return r.On(prefix, Response{Err: fmt.Errorf("%s: exit status 1", prefix)})
}

func (r *Recorder) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := name
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, line)
	for i := len(r.responses) - 1; i >= 0; i-- {
		s := r.responses[i]
		if strings.HasPrefix(line, s.prefix) {
			return []byte(s.resp.Output), s.resp.Err
		}
	}
	return nil, nil
}

// Calls returns the recorded command lines in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ran reports whether any recorded command starts with prefix.
func (r *Recorder) Ran(prefix string) bool {
	return r.Index(prefix) >= 0
}

// Index returns the position of the first command starting with prefix, or -1.
func (r *Recorder) Index(prefix string) int {
	for i, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}
