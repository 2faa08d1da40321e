package builtin

import (
	"context"
	"testing"

	"taubench/internal/task"
	"taubench/internal/toolregistry"

	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tool := NewCalculate()
	tests := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"10 / 4", "2.5"},
		{"(1 + 2) * 3", "9"},
		{"100 / 3", "33.33"},
		{"1.5 * 2", "3.0"},
		{"-4 + 1", "-3"},
		{"2 * (50 + 25.5)", "151.0"},
	}
	for _, tt := range tests {
		got, err := tool.Invoke(context.Background(), nil, toolregistry.Args{"expression": tt.expr})
		require.NoError(t, err, tt.expr)
		require.Equal(t, tt.want, got, tt.expr)
	}
}

func TestCalculateErrors(t *testing.T) {
	tool := NewCalculate()
	for expr, want := range map[string]string{
		"2 ** x":  "invalid characters",
		"1 / 0":   "division by zero",
		"(1 + 2":  "missing closing parenthesis",
		"1 +":     "unexpected end",
		"1.2.3":   "invalid number",
		"2 3":     "unexpected",
		"import":  "invalid characters",
	} {
		_, err := tool.Invoke(context.Background(), nil, toolregistry.Args{"expression": expr})
		require.ErrorContains(t, err, want, expr)
	}
}

func TestRegisterSharedTools(t *testing.T) {
	r := toolregistry.NewRegistry(nil)
	require.NoError(t, Register(r))
	require.Equal(t, []string{"calculate", "think", TransferToHumanName}, r.Names())
	require.True(t, r.IsTerminal(TransferToHumanName))
	require.False(t, r.IsTerminal("think"))

	obs, err := r.Dispatch(context.Background(), nil, task.Action{
		Name:   TransferToHumanName,
		Kwargs: map[string]any{"summary": "wants a refund"},
	})
	require.NoError(t, err)
	require.Equal(t, "Transfer successful", obs)

	obs, err = r.Dispatch(context.Background(), nil, task.Action{Name: "think", Kwargs: map[string]any{"thought": "hmm"}})
	require.NoError(t, err)
	require.Equal(t, "", obs)
}
