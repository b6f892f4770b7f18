package console

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/internal/attempt"
)

// warnAt are the remaining times at which a countdown notice is printed.
var warnAt = []time.Duration{5 * time.Minute, time.Minute, 10 * time.Second}

// Printer writes session events to a terminal. It is an attempt.Observer and
// the only writer of the output stream, so notices from the countdown
// goroutine never interleave with a rendered view.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	warned int
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Printf writes a formatted line.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Notice writes a "[!]" line.
func (p *Printer) Notice(format string, args ...interface{}) {
	p.Printf("[!] "+format+"\n", args...)
}

func (p *Printer) Started(attemptID string, remaining time.Duration) {
	p.mu.Lock()
	p.warned = 0
	p.mu.Unlock()
	if remaining > 0 {
		p.Printf("Attempt started. You have %s.\n", attempt.FormatClock(remaining))
		return
	}
	p.Printf("Attempt started. There is no time limit.\n")
}

// Tick prints a notice the first time the countdown drops under each of the
// warning thresholds.
func (p *Printer) Tick(remaining time.Duration) {
	p.mu.Lock()
	crossed := -1
	for p.warned < len(warnAt) && remaining <= warnAt[p.warned] {
		crossed = p.warned
		p.warned++
	}
	p.mu.Unlock()
	if crossed >= 0 && remaining > 0 {
		p.Notice("%s remaining", attempt.FormatClock(remaining))
	}
}

// Finished is rendered by the runner once it notices the attempt is done.
func (p *Printer) Finished(attempt.Summary) {}

func (p *Printer) Failed(f attempt.Failure, err error) {
	msg := describe(err)
	switch f {
	case attempt.FailureLoad:
		p.Notice("Could not load the quiz: %s", msg)
	case attempt.FailureStart:
		p.Notice("Could not start the attempt: %s", msg)
	case attempt.FailureAnswer:
		p.Notice("Your answer may not have been saved: %s", msg)
	case attempt.FailureFinish:
		p.Notice("Could not submit your attempt: %s. Type 'retry' to try again.", msg)
	}
}

// describe prefers the server's own message over the wrapped error chain.
func describe(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
