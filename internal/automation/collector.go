package automation

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout matches JavaScript's Date.toISOString output.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// OutputCollector accumulates the timestamped transcript of a single run.
// It is used sequentially by one run and is not safe for concurrent use.
type OutputCollector struct {
	now    func() time.Time
	mirror func(line string)
	lines  []string
}

// NewOutputCollector creates an empty collector.
func NewOutputCollector() *OutputCollector {
	return &OutputCollector{now: time.Now}
}

// Mirror sends every appended line to fn as well, e.g. the process log.
func (c *OutputCollector) Mirror(fn func(line string)) *OutputCollector {
	c.mirror = fn
	return c
}

// Log appends a progress line.
func (c *OutputCollector) Log(message string) {
	c.append(message)
}

// Logf is Log with formatting.
func (c *OutputCollector) Logf(format string, args ...any) {
	c.append(fmt.Sprintf(format, args...))
}

// Error appends a line marked with "ERROR:".
func (c *OutputCollector) Error(message string) {
	c.append("ERROR: " + message)
}

// Errorf is Error with formatting.
func (c *OutputCollector) Errorf(format string, args ...any) {
	c.Error(fmt.Sprintf(format, args...))
}

// Output returns all lines joined by newlines.
func (c *OutputCollector) Output() string {
	return strings.Join(c.lines, "\n")
}

// Lines returns a copy of the transcript lines.
func (c *OutputCollector) Lines() []string {
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Clear empties the transcript.
func (c *OutputCollector) Clear() {
	c.lines = nil
}

func (c *OutputCollector) append(message string) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	line := "[" + now().UTC().Format(timestampLayout) + "] " + message
	c.lines = append(c.lines, line)
	if c.mirror != nil {
		c.mirror(line)
	}
}
