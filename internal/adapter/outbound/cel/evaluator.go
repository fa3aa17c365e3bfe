// Package cel provides a CEL-based evaluator for organization guard rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/actiongate/actiongate/internal/domain/policy"
)

// maxExpressionLength is the maximum allowed length for guard conditions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// GuardEvaluator compiles and evaluates guard rule conditions. Conditions are
// compiled once and cached by expression text; the cache only grows with the
// set of distinct configured conditions, which is small and bounded.
type GuardEvaluator struct {
	env    *cel.Env
	logger *slog.Logger

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// newGuardEnvironment creates the CEL environment guard conditions are
// compiled against. Conditions see the invocation, never other
// organizations' state.
func newGuardEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("capability", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("destructive", cel.BoolType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("org_id", cel.StringType),
		cel.Variable("user_id", cel.StringType),
	)
}

// NewGuardEvaluator creates a guard evaluator.
func NewGuardEvaluator(logger *slog.Logger) (*GuardEvaluator, error) {
	env, err := newGuardEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create guard environment: %w", err)
	}
	return &GuardEvaluator{
		env:      env,
		logger:   logger,
		programs: make(map[string]cel.Program),
	}, nil
}

// ValidateExpression checks that a guard condition is syntactically valid and
// within the safety limits. Called at config load so a broken condition is a
// startup error, not a silent per-request deny.
func (e *GuardEvaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.compile(expr); err != nil {
		return fmt.Errorf("invalid guard condition: %w", err)
	}
	return nil
}

// EvaluateGuards runs the organization's guard rules against one invocation.
// A deny from any matching rule wins over require_approval; guards only ever
// tighten the policy resolution. A rule whose condition fails to compile or
// evaluate counts as a deny for that rule: a broken guard must not silently
// grant what it was written to restrict.
func (e *GuardEvaluator) EvaluateGuards(ctx context.Context, rules []policy.GuardRule, input policy.GuardInput) (policy.GuardVerdict, error) {
	verdict := policy.GuardVerdict{}

	for _, rule := range rules {
		if !policy.GuardMatchesCapability(rule, input.CapabilityName) {
			continue
		}

		matched, err := e.evaluateCondition(ctx, rule.Condition, input)
		if err != nil {
			e.logger.Warn("guard condition failed, treating as deny",
				"rule", rule.Name,
				"capability", input.CapabilityName,
				"org_id", input.OrganizationID,
				"error", err,
			)
			return policy.GuardVerdict{Matched: true, Action: policy.GuardDeny, RuleName: rule.Name}, nil
		}
		if !matched {
			continue
		}

		if rule.Action == policy.GuardDeny {
			return policy.GuardVerdict{Matched: true, Action: policy.GuardDeny, RuleName: rule.Name}, nil
		}
		if !verdict.Matched {
			verdict = policy.GuardVerdict{Matched: true, Action: rule.Action, RuleName: rule.Name}
		}
	}
	return verdict, nil
}

// evaluateCondition compiles (or fetches) and runs one condition. An empty
// condition always matches: the rule applies to every invocation of the
// capabilities its pattern names.
func (e *GuardEvaluator) evaluateCondition(ctx context.Context, condition string, input policy.GuardInput) (bool, error) {
	if condition == "" {
		return true, nil
	}

	prg, err := e.compile(condition)
	if err != nil {
		return false, err
	}

	args := input.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	activation := map[string]interface{}{
		"capability":  input.CapabilityName,
		"category":    input.Category,
		"destructive": input.Destructive,
		"args":        args,
		"org_id":      input.OrganizationID,
		"user_id":     input.UserID,
	}

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(evalCtx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	if result == types.True {
		return true, nil
	}
	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// compile parses and type-checks a condition, caching the program.
func (e *GuardEvaluator) compile(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Compile-time interface verification.
var _ policy.GuardEvaluator = (*GuardEvaluator)(nil)
