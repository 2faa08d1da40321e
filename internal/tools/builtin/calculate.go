package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"
)

// calculateTool evaluates arithmetic for the agent.
type calculateTool struct{}

// NewCalculate creates the arithmetic tool.
func NewCalculate() toolregistry.Tool {
	return &calculateTool{}
}

func (t *calculateTool) Definition() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "calculate",
		Description: "Calculate the result of a mathematical expression.",
		Parameters: toolregistry.Object(
			toolregistry.String("expression", "The mathematical expression to calculate, such as '2 + 2'. The expression can contain numbers, operators (+, -, *, /), parentheses, and spaces."),
		),
	}
}

func (t *calculateTool) Invoke(_ context.Context, _ worldstate.Document, args toolregistry.Args) (string, error) {
	expr, err := args.String("expression")
	if err != nil {
		return "", err
	}
	for _, r := range expr {
		if !strings.ContainsRune("0123456789+-*/(). ", r) {
			return "", errors.New("invalid characters in expression")
		}
	}
	p := &exprParser{src: expr}
	v, err := p.parse()
	if err != nil {
		return "", err
	}
	return v.round2(), nil
}

// number keeps integer results integral, the way a calculator prints 5
// for 2+3 but 2.5 for 10/4.
type number struct {
	f       float64
	integer bool
}

func (n number) round2() string {
	if n.integer {
		return strconv.FormatInt(int64(n.f), 10)
	}
	return worldstate.FormatFloat(math.Round(n.f*100) / 100)
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parse() (number, error) {
	v, err := p.expr()
	if err != nil {
		return number{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return number{}, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

func (p *exprParser) expr() (number, error) {
	left, err := p.term()
	if err != nil {
		return number{}, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || (p.src[p.pos] != '+' && p.src[p.pos] != '-') {
			return left, nil
		}
		op := p.src[p.pos]
		p.pos++
		right, err := p.term()
		if err != nil {
			return number{}, err
		}
		if op == '+' {
			left = number{f: left.f + right.f, integer: left.integer && right.integer}
		} else {
			left = number{f: left.f - right.f, integer: left.integer && right.integer}
		}
	}
}

func (p *exprParser) term() (number, error) {
	left, err := p.unary()
	if err != nil {
		return number{}, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || (p.src[p.pos] != '*' && p.src[p.pos] != '/') {
			return left, nil
		}
		op := p.src[p.pos]
		p.pos++
		right, err := p.unary()
		if err != nil {
			return number{}, err
		}
		if op == '*' {
			left = number{f: left.f * right.f, integer: left.integer && right.integer}
			continue
		}
		if right.f == 0 {
			return number{}, errors.New("division by zero")
		}
		left = number{f: left.f / right.f}
	}
}

func (p *exprParser) unary() (number, error) {
	p.skipSpace()
	if p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
		neg := p.src[p.pos] == '-'
		p.pos++
		v, err := p.unary()
		if err != nil {
			return number{}, err
		}
		if neg {
			v.f = -v.f
		}
		return v, nil
	}
	return p.primary()
}

func (p *exprParser) primary() (number, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return number{}, errors.New("unexpected end of expression")
	}
	if p.src[p.pos] == '(' {
		p.pos++
		v, err := p.expr()
		if err != nil {
			return number{}, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return number{}, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" {
		return number{}, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return number{}, fmt.Errorf("invalid number %q", lit)
	}
	return number{f: f, integer: !strings.Contains(lit, ".")}, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}
