// Package terminal renders session views as plain text and hosts the
// quizctl commands that drive a SessionClient from a shell.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/mcdev12/quizsync/go/internal/models"
	"github.com/mcdev12/quizsync/go/internal/quiz/projection"
)

// Renderer writes every view it receives to out. It implements
// client.Renderer.
type Renderer struct {
	mu    sync.Mutex
	out   io.Writer
	clear bool
	last  projection.PlayerView
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// NewTerminalRenderer redraws the screen for every view when f is a
// terminal and appends otherwise.
func NewTerminalRenderer(f *os.File) *Renderer {
	return &Renderer{out: f, clear: term.IsTerminal(int(f.Fd()))}
}

func (r *Renderer) RenderGameMaster(v projection.GMView) {
	var b strings.Builder
	if v.Missing {
		fmt.Fprintf(&b, "\n%s\n", projection.MissingMessage)
		r.writeView(b.String())
		return
	}

	fmt.Fprintf(&b, "\n== Game %s (%s) %s ==\n", v.SessionID, v.Category, v.Status)
	fmt.Fprintf(&b, "Players (%d):\n", len(v.Roster))
	for _, p := range v.Roster {
		mark := " "
		if p.Answered {
			mark = "*"
		}
		fmt.Fprintf(&b, " %s %-20s %5d\n", mark, p.Name, p.Score)
	}

	if v.Question != nil {
		writeQuestion(&b, v.Question)
		fmt.Fprintf(&b, "Time: %ds  Answered: %d/%d\n", v.TimeRemaining, v.Answered, len(v.Roster))
		if v.CorrectOption != "" {
			fmt.Fprintf(&b, "Correct: %s\n", v.CorrectOption)
		}
	}
	if v.Status == models.SessionStatusFinished {
		writeScoreboard(&b, v.Scoreboard)
	}

	var cmds []string
	if v.Controls.CanStart {
		cmds = append(cmds, "start")
	}
	if v.Controls.CanAdvance {
		cmds = append(cmds, "next")
	}
	if v.Controls.CanEnd {
		cmds = append(cmds, "end")
	}
	if len(cmds) > 0 {
		fmt.Fprintf(&b, "Commands: %s\n", strings.Join(cmds, " | "))
	}
	r.writeView(b.String())
}

func (r *Renderer) RenderPlayer(v projection.PlayerView) {
	r.mu.Lock()
	r.last = v
	r.mu.Unlock()

	var b strings.Builder
	switch v.Phase {
	case projection.PhaseWaiting:
		fmt.Fprintf(&b, "\nJoined game %s. Waiting for the game master to start...\n", v.SessionID)
	case projection.PhaseQuestion:
		writeQuestion(&b, v.Question)
		fmt.Fprintf(&b, "Time: %ds  Score: %d\n", v.TimeRemaining, v.Score)
		if v.Answered {
			b.WriteString("Answer submitted.\n")
		} else if v.CanAnswer {
			b.WriteString("Type an option number to answer.\n")
		}
	case projection.PhaseReveal:
		fmt.Fprintf(&b, "\nTime's up! Correct answer: %s  Score: %d\n", v.CorrectOption, v.Score)
	case projection.PhaseFinished:
		fmt.Fprintf(&b, "\nGame over. Your score: %d\n", v.Score)
		writeScoreboard(&b, v.Scoreboard)
	default:
		msg := v.Message
		if msg == "" {
			msg = projection.MissingMessage
		}
		fmt.Fprintf(&b, "\n%s\n", msg)
	}
	r.writeView(b.String())
}

// Option maps a 1-based option number to the text of that option in the
// question last shown to the player.
func (r *Renderer) Option(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.last.Question
	if q == nil || n < 1 || n > len(q.Options) {
		return "", false
	}
	return q.Options[n-1], true
}

// Printf writes a line that is not a view, such as a command error.
func (r *Renderer) Printf(format string, args ...any) {
	r.write(fmt.Sprintf(format, args...))
}

func (r *Renderer) writeView(s string) {
	if r.clear {
		s = "\033[H\033[2J" + s
	}
	r.write(s)
}

func (r *Renderer) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, s)
}

func writeQuestion(b *strings.Builder, q *projection.QuestionView) {
	if q == nil {
		return
	}
	fmt.Fprintf(b, "\nQuestion %d/%d: %s\n", q.Index+1, q.Total, q.Text)
	for i, opt := range q.Options {
		fmt.Fprintf(b, "  %d) %s\n", i+1, opt)
	}
}

func writeScoreboard(b *strings.Builder, board []projection.RosterEntry) {
	b.WriteString("Final scores:\n")
	if len(board) == 0 {
		b.WriteString("  nobody played\n")
	}
	for _, p := range board {
		fmt.Fprintf(b, "  %d. %-20s %5d\n", p.Rank, p.Name, p.Score)
	}
}
