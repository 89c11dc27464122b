package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Literals(t *testing.T) {
	assert.True(t, Evaluate("true", nil, false))
	assert.False(t, Evaluate("false", nil, true))
	assert.False(t, Evaluate("null", nil, true))
}

func TestEvaluate_MapSubscript(t *testing.T) {
	ctx := map[string]any{
		"result": map[string]any{"tier": "high"},
	}
	assert.True(t, Evaluate("result['tier'] == 'high'", ctx, false))
	assert.False(t, Evaluate("result['tier'] == 'low'", ctx, false))
}

func TestEvaluate_AndOrNot(t *testing.T) {
	ctx := map[string]any{"a": true, "b": false}
	assert.True(t, Evaluate("a and not b", ctx, false))
	assert.True(t, Evaluate("a or b", ctx, false))
	assert.False(t, Evaluate("not a", ctx, true))
}

func TestEvaluate_Comparison(t *testing.T) {
	ctx := map[string]any{"count": 5.0}
	assert.True(t, Evaluate("count >= 5", ctx, false))
	assert.False(t, Evaluate("count > 5", ctx, true))
}

func TestEvaluate_DefaultOnError(t *testing.T) {
	assert.True(t, Evaluate("missing_var == 'x'", nil, true))
	assert.False(t, Evaluate("missing_var == 'x'", nil, false))
	assert.True(t, Evaluate("((", nil, true))
}

func TestEvaluateStrict_UndefinedIdentifier(t *testing.T) {
	_, err := EvaluateStrict("approval_status == 'approved'", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedIdentifier)
}

func TestEvaluateStrict_SandboxNoBuiltins(t *testing.T) {
	// No access to anything except context; an unknown function-like
	// identifier is just another undefined identifier, never executed.
	_, err := EvaluateStrict("os['system']", map[string]any{})
	require.Error(t, err)
}
