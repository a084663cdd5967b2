// Package notify is the sink for user-visible messages. The calculation
// and execution pipelines report failures here instead of printing or
// panicking, so callers decide how warnings reach the user.
package notify

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
)

// Notifier receives user-visible messages from the core.
type Notifier interface {
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Console renders notifications to the terminal.
type Console struct{}

func NewConsole() *Console { return &Console{} }

func (c *Console) Success(format string, args ...interface{}) {
	color.Green(format, args...)
}

func (c *Console) Warn(format string, args ...interface{}) {
	color.Yellow(format, args...)
}

func (c *Console) Error(format string, args ...interface{}) {
	color.Red(format, args...)
}

// Message is a captured notification.
type Message struct {
	Level string
	Text  string
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) record(level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Level: level, Text: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Success(format string, args ...interface{}) { r.record("success", format, args...) }
func (r *Recorder) Warn(format string, args ...interface{})    { r.record("warn", format, args...) }
func (r *Recorder) Error(format string, args ...interface{})   { r.record("error", format, args...) }

// Count returns the number of captured messages at the given level.
func (r *Recorder) Count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Messages {
		if m.Level == level {
			n++
		}
	}
	return n
}
