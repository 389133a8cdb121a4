package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    Input
		decision string
		reason   string
	}{
		{"unlimited", Input{Length: 10, MaxLength: 1000, TurnCount: 500}, DecisionAllow, ""},
		{"under turn cap", Input{Length: 10, MaxLength: 1000, TurnCount: 2, MaxTurns: 4}, DecisionAllow, ""},
		{"at turn cap", Input{Length: 10, MaxLength: 1000, TurnCount: 4, MaxTurns: 4}, DecisionBlock, "session has reached the maximum number of messages"},
		{"too long", Input{Length: 2000, MaxLength: 1000}, DecisionBlock, "message exceeds the maximum length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, reason, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	content := `
package message_policy

result = {"decision": "block", "reason": "maintenance"} {
	input.owner_id == "blocked-user"
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	engine, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	decision, reason, err := engine.Evaluate(ctx, Input{OwnerID: "blocked-user"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
	assert.Equal(t, "maintenance", reason)

	decision, _, err = engine.Evaluate(ctx, Input{OwnerID: "someone"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)

	_, err = NewEngineFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)

	_, err = NewEngine(ctx, "package broken\nthis is not rego")
	assert.Error(t, err)
}
