// Package policy evaluates message admission rules written in rego.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document a policy sees for one inbound user message.
type Input struct {
	OwnerID   string `json:"owner_id"`
	SessionID string `json:"session_id"`
	Length    int    `json:"length"`
	MaxLength int    `json:"max_length"`
	TurnCount int    `json:"turn_count"`
	MaxTurns  int    `json:"max_turns"`
}

// NewEngine creates a new policy engine with the given policy content.
// The module must define package message_policy with a result object.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.message_policy.result"),
		rego.Module("message_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy at path. An empty path loads DefaultPolicy.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks the message policy.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}
	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, reason, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package message_policy

default decision = "allow"

default reason = ""

reason = "message exceeds the maximum length" {
	input.max_length > 0
	input.length > input.max_length
} else = "session has reached the maximum number of messages" {
	input.max_turns > 0
	input.turn_count + 2 > input.max_turns
}

decision = "block" {
	reason != ""
}

result = {"decision": decision, "reason": reason}
`
