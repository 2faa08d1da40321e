package usersim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	agentLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	hintLabel  = color.New(color.FgHiBlack).SprintFunc()
)

// Human relays the conversation to a person at a terminal. Typing the stop
// sentinel, or closing the input, ends the episode. Cancelling the context of
// a pending read closes the input for good.
type Human struct {
	stdin       *readline.CancelableStdin
	closeOnce   sync.Once
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewHuman reads replies from in and prints the agent side to out. Prompts
// are only shown when in is a terminal.
func NewHuman(in io.Reader, out io.Writer) *Human {
	interactive := false
	if file, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(file.Fd()))
	}
	stdin := readline.NewCancelableStdin(in)
	return &Human{stdin: stdin, in: bufio.NewReader(stdin), out: out, interactive: interactive}
}

func (h *Human) Reset(ctx context.Context, instruction string) (string, error) {
	fmt.Fprintf(h.out, "%s\n%s\n\n", hintLabel("Instruction (type "+StopSentinel+" to end):"), instruction)
	return h.read(ctx)
}

func (h *Human) Step(ctx context.Context, content string) (string, error) {
	fmt.Fprintf(h.out, "%s %s\n", agentLabel("agent>"), content)
	return h.read(ctx)
}

func (h *Human) Cost() float64 { return 0 }

func (h *Human) closeInput() {
	h.closeOnce.Do(func() { _ = h.stdin.Close() })
}

func (h *Human) read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h.interactive {
		fmt.Fprint(h.out, "user> ")
	}
	stop := context.AfterFunc(ctx, h.closeInput)
	line, err := h.in.ReadString('\n')
	stop()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, io.EOF) {
		if strings.TrimSpace(line) == "" {
			return StopSentinel, nil
		}
		return strings.TrimSpace(line), nil
	}
	if err != nil {
		return "", fmt.Errorf("read user input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
