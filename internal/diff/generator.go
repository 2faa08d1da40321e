// Package diff renders line-oriented unified diffs, used to explain why two
// world states hash differently.
package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Generator handles unified diff generation
type Generator struct {
	contextLines int
	colorEnabled bool
}

// NewGenerator creates a new diff generator
func NewGenerator(contextLines int, colorEnabled bool) *Generator {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Generator{
		contextLines: contextLines,
		colorEnabled: colorEnabled,
	}
}

// Result contains the generated diff and statistics
type Result struct {
	Unified      string
	AddedLines   int
	DeletedLines int
}

// Empty reports whether both sides were identical.
func (r *Result) Empty() bool {
	return r == nil || r.Unified == ""
}

type opKind byte

const (
	opEqual  opKind = ' '
	opDelete opKind = '-'
	opInsert opKind = '+'
)

type lineOp struct {
	kind opKind
	text string
	// 1-based line numbers on each side; zero when the line is absent there.
	oldNo, newNo int
}

// Unified diffs oldText against newText line by line.
func (g *Generator) Unified(oldText, newText, oldLabel, newLabel string) *Result {
	if oldText == newText {
		return &Result{}
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	ops, added, deleted := toLineOps(diffs)
	var out strings.Builder
	out.WriteString(g.colorize("--- "+oldLabel+"\n", color.FgRed))
	out.WriteString(g.colorize("+++ "+newLabel+"\n", color.FgGreen))
	for _, h := range g.hunks(ops) {
		g.writeHunk(&out, ops[h[0]:h[1]])
	}
	return &Result{Unified: out.String(), AddedLines: added, DeletedLines: deleted}
}

func toLineOps(diffs []diffmatchpatch.Diff) (ops []lineOp, added, deleted int) {
	oldNo, newNo := 1, 1
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{kind: opEqual, text: line, oldNo: oldNo, newNo: newNo})
				oldNo++
				newNo++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{kind: opDelete, text: line, oldNo: oldNo})
				oldNo++
				deleted++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{kind: opInsert, text: line, newNo: newNo})
				newNo++
				added++
			}
		}
	}
	return ops, added, deleted
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// hunks returns [start, end) ranges of ops around changes, merged when their
// context overlaps.
func (g *Generator) hunks(ops []lineOp) [][2]int {
	var out [][2]int
	for i, op := range ops {
		if op.kind == opEqual {
			continue
		}
		start := max(0, i-g.contextLines)
		end := min(len(ops), i+g.contextLines+1)
		if n := len(out); n > 0 && start <= out[n-1][1] {
			out[n-1][1] = max(out[n-1][1], end)
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func (g *Generator) writeHunk(out *strings.Builder, ops []lineOp) {
	var oldStart, newStart, oldCount, newCount int
	for _, op := range ops {
		if op.kind != opInsert {
			if oldStart == 0 {
				oldStart = op.oldNo
			}
			oldCount++
		}
		if op.kind != opDelete {
			if newStart == 0 {
				newStart = op.newNo
			}
			newCount++
		}
	}
	out.WriteString(g.colorize(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount), color.FgCyan))
	for _, op := range ops {
		line := string(op.kind) + op.text + "\n"
		switch op.kind {
		case opDelete:
			out.WriteString(g.colorize(line, color.FgRed))
		case opInsert:
			out.WriteString(g.colorize(line, color.FgGreen))
		default:
			out.WriteString(line)
		}
	}
}

// Colorize highlights an already rendered unified diff.
func (g *Generator) Colorize(unified string) string {
	if !g.colorEnabled || unified == "" {
		return unified
	}
	lines := strings.SplitAfter(unified, "\n")
	var out strings.Builder
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "-"):
			out.WriteString(g.colorize(line, color.FgRed))
		case strings.HasPrefix(line, "+"):
			out.WriteString(g.colorize(line, color.FgGreen))
		case strings.HasPrefix(line, "@@"):
			out.WriteString(g.colorize(line, color.FgCyan))
		default:
			out.WriteString(line)
		}
	}
	return out.String()
}

// colorize applies color to text if color is enabled
func (g *Generator) colorize(text string, colorAttr color.Attribute) string {
	if !g.colorEnabled {
		return text
	}
	return color.New(colorAttr).Sprint(text)
}

// FormatSummary returns a human-readable summary of changes
func (r *Result) FormatSummary() string {
	if r.Empty() {
		return "No changes"
	}
	parts := []string{}
	if r.AddedLines > 0 {
		parts = append(parts, fmt.Sprintf("+%d lines", r.AddedLines))
	}
	if r.DeletedLines > 0 {
		parts = append(parts, fmt.Sprintf("-%d lines", r.DeletedLines))
	}
	return strings.Join(parts, ", ")
}
