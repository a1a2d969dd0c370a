// Package stacktrace captures a structured, JSON-serializable view of the
// call stack at the point a failure is recovered.
package stacktrace

import (
	"fmt"
	"runtime"
	"strings"
)

// Frame is one entry of a captured stack, innermost first.
type Frame struct {
	File     string            `json:"file"`
	Line     int               `json:"line"`
	Function string            `json:"function"`
	Locals   map[string]string `json:"locals,omitempty"`
}

// Capture is the serializable result of a stack capture. Empty captures
// (no frames) are valid and mean "nothing useful could be recovered".
type Capture struct {
	Frames    []Frame `json:"frames"`
	LastFrame *Frame  `json:"last_frame,omitempty"`
}

// FramePaths returns the source-file path of every frame, innermost to
// outermost, for fingerprinting.
func (c *Capture) FramePaths() []string {
	paths := make([]string, 0, len(c.Frames))
	for _, f := range c.Frames {
		paths = append(paths, f.File)
	}
	return paths
}

// Origin returns the best-effort origin location of the failure: the
// innermost captured frame. Returns ("", 0) when nothing was captured.
func (c *Capture) Origin() (string, int) {
	if c.LastFrame == nil {
		return "", 0
	}
	return c.LastFrame.File, c.LastFrame.Line
}

// Capturer produces a stack capture for a recovered failure. Implementations
// must fail soft: an error here never aborts error logging, the caller
// degrades to an empty capture.
type Capturer interface {
	Capture(recovered any) (*Capture, error)
}

// RuntimeCapturer captures the goroutine's current call stack via
// runtime.Callers. It is meant to be invoked inside the deferred recover
// that caught the failure, so the unwound frames are still on the stack.
type RuntimeCapturer struct {
	// Skip drops this many additional frames beyond the capturer's own,
	// letting callers hide their recovery plumbing.
	Skip int
	// MaxDepth bounds the walk. Zero means the default of 64.
	MaxDepth int
}

func (rc *RuntimeCapturer) Capture(_ any) (*Capture, error) {
	depth := rc.MaxDepth
	if depth <= 0 {
		depth = 64
	}

	pcs := make([]uintptr, depth)
	n := runtime.Callers(2+rc.Skip, pcs)
	if n == 0 {
		return nil, fmt.Errorf("stacktrace: no frames available")
	}

	all := make([]Frame, 0, n)
	panicIdx := -1
	iter := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := iter.Next()
		if fr.Function == "runtime.gopanic" && panicIdx < 0 {
			panicIdx = len(all)
		}
		if !isRuntimeFrame(fr.Function) {
			all = append(all, Frame{
				File:     fr.File,
				Line:     fr.Line,
				Function: fr.Function,
			})
		}
		if !more {
			break
		}
	}

	// When called from inside panic recovery, everything above
	// runtime.gopanic is recovery plumbing; the panicking stack starts
	// right below it. Outside a panic there is no marker and the whole
	// walk is the capture.
	if panicIdx >= 0 {
		all = all[panicIdx:]
	}

	cap := &Capture{Frames: all}
	if len(cap.Frames) > 0 {
		cap.LastFrame = &cap.Frames[0]
	}
	return cap, nil
}

// isRuntimeFrame filters panic/recover plumbing out of the capture.
func isRuntimeFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.")
}
