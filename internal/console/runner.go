// Package console is the terminal front end of a quiz attempt.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"quizrun-go/internal/api"
	"quizrun-go/internal/attempt"

	"go.uber.org/zap"
)

// Runner reads commands line by line and drives a session with them.
type Runner struct {
	session *attempt.Session
	printer *Printer
	in      io.Reader
	log     *zap.Logger
}

// NewRunner wires a session to a terminal. The printer should be the same one
// the session reports to.
func NewRunner(session *attempt.Session, printer *Printer, in io.Reader, log *zap.Logger) *Runner {
	return &Runner{session: session, printer: printer, in: in, log: log}
}

// Run shows the quiz and processes commands until the attempt is finished,
// the user quits, input ends or ctx is cancelled. The session must be loaded.
func (r *Runner) Run(ctx context.Context) error {
	snap := r.session.Snapshot()
	if snap.Quiz == nil {
		return attempt.ErrNotLoaded
	}
	r.renderIntro(snap.Quiz)

	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.session.Done():
			r.renderResult()
			return nil
		case line, ok := <-lines:
			if !ok || r.handle(ctx, line) {
				if r.finished() {
					r.renderResult()
				}
				return nil
			}
			if r.finished() {
				r.renderResult()
				return nil
			}
		}
	}
}

func (r *Runner) finished() bool {
	select {
	case <-r.session.Done():
		return true
	default:
		return false
	}
}

func (r *Runner) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]
	r.log.Debug("Command", zap.String("cmd", cmd), zap.Strings("args", args))

	if cmd == "quit" || cmd == "q" || cmd == "exit" {
		return true
	}

	switch r.session.State() {
	case attempt.NotStarted:
		if cmd != "start" && cmd != "s" {
			r.printer.Notice("Type 'start' to begin or 'quit' to leave.")
			return false
		}
		if err := r.session.Start(ctx); err != nil {
			r.local(err)
			return false
		}
		r.renderQuestion()
	case attempt.InProgress:
		r.inProgress(ctx, cmd, args)
	}
	return false
}

func (r *Runner) inProgress(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "next", "n":
		if moved, err := r.session.Next(); err != nil {
			r.local(err)
			return
		} else if !moved {
			r.printer.Notice("This is the last question.")
		}
	case "prev", "p":
		if moved, err := r.session.Prev(); err != nil {
			r.local(err)
			return
		} else if !moved {
			r.printer.Notice("This is the first question.")
		}
	case "goto", "g":
		n, ok := number(args)
		if !ok {
			r.printer.Notice("Usage: goto N")
			return
		}
		if err := r.session.Goto(n - 1); err != nil {
			r.printer.Notice("There is no question %d.", n)
			return
		}
	case "answer", "a":
		r.answer(ctx, args)
	case "finish", "f", "retry":
		r.finish(ctx)
		return
	default:
		r.printer.Notice("Unknown command %q.", cmd)
		return
	}
	r.renderQuestion()
}

func (r *Runner) answer(ctx context.Context, args []string) {
	q, _, err := r.session.Current()
	if err != nil {
		r.local(err)
		return
	}
	k, ok := number(args)
	if !ok || k < 1 || k > len(q.Options) {
		r.printer.Notice("Pick an option between 1 and %d.", len(q.Options))
		return
	}
	// A failed save is already reported; the local answer stays either way.
	if err := r.session.SubmitAnswer(ctx, q.ID, q.Options[k-1]); err != nil {
		r.local(err)
	}
}

func (r *Runner) finish(ctx context.Context) {
	snap := r.session.Snapshot()
	if !snap.FinishFailed && snap.Index != len(snap.Quiz.Questions)-1 {
		r.printer.Notice("Finish is offered on the last question.")
		return
	}
	if _, err := r.session.Finish(ctx); err != nil {
		r.local(err)
	}
}

// local prints errors the session did not already report to the printer.
func (r *Runner) local(err error) {
	switch {
	case errors.Is(err, attempt.ErrFinishInFlight):
		r.printer.Notice("Your attempt is being submitted.")
	case errors.Is(err, attempt.ErrNotInProgress):
		r.printer.Notice("The attempt is not in progress.")
	case errors.Is(err, attempt.ErrAlreadyStarted),
		errors.Is(err, attempt.ErrUnknownQuestion),
		errors.Is(err, attempt.ErrUnknownOption),
		errors.Is(err, attempt.ErrNotLoaded):
		r.printer.Notice("%s", err)
	}
}

func (r *Runner) renderIntro(q *api.Quiz) {
	var b strings.Builder
	b.WriteString("\n== " + q.Title + " ==\n")
	if q.Description != "" {
		b.WriteString(q.Description + "\n")
	}
	b.WriteString("Questions:     " + strconv.Itoa(len(q.Questions)) + "\n")
	if limit, ok := q.TimeLimit(); ok {
		b.WriteString("Time limit:    " + attempt.FormatClock(limit) + "\n")
	} else {
		b.WriteString("Time limit:    none\n")
	}
	b.WriteString("Passing score: " + strconv.Itoa(q.PassingScore) + "%\n")
	if q.AllowedAttempts > 0 {
		b.WriteString("Attempts:      " + strconv.Itoa(q.AllowedAttempts) + "\n")
	} else {
		b.WriteString("Attempts:      unlimited\n")
	}
	b.WriteString("Type 'start' to begin or 'quit' to leave.\n")
	r.printer.Printf("%s", b.String())
}

func (r *Runner) renderQuestion() {
	snap := r.session.Snapshot()
	if snap.State != attempt.InProgress {
		return
	}
	questions := snap.Quiz.Questions
	q := questions[snap.Index]

	var b strings.Builder
	b.WriteString("\n")
	for i, other := range questions {
		label := strconv.Itoa(i + 1)
		if _, answered := snap.Answers[other.ID]; answered {
			label += "*"
		}
		if i == snap.Index {
			label = "[" + label + "]"
		}
		b.WriteString(" " + label)
	}
	if snap.Timed {
		b.WriteString("    time " + attempt.FormatClock(snap.Remaining))
	}
	b.WriteString("\n\nQuestion " + strconv.Itoa(snap.Index+1) + " of " + strconv.Itoa(len(questions)) + "\n")
	b.WriteString(q.Prompt + "\n")
	selected := snap.Answers[q.ID]
	for i, opt := range q.Options {
		mark := "  "
		if opt == selected {
			mark = "> "
		}
		b.WriteString("  " + mark + strconv.Itoa(i+1) + ") " + opt + "\n")
	}

	cmds := "answer K, prev, next, goto N"
	switch {
	case snap.FinishFailed:
		cmds += ", retry"
	case snap.Index == len(questions)-1:
		cmds += ", finish"
	}
	b.WriteString("Commands: " + cmds + ", quit\n")
	r.printer.Printf("%s", b.String())
}

func (r *Runner) renderResult() {
	snap := r.session.Snapshot()
	res := snap.Result
	if res == nil {
		return
	}
	if snap.Timed && snap.Remaining == 0 {
		r.printer.Notice("Time is up. Your attempt was submitted automatically.")
	}
	outcome := "failed"
	if res.Passed {
		outcome = "passed"
	}
	r.printer.Printf("\n== Results ==\nScore:      %d/%d (%d%%)\nOutcome:    %s\nTime taken: %s\n",
		res.Score, res.Total, res.Percentage, outcome, attempt.FormatClock(res.Elapsed))
}

func number(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	return n, err == nil
}
