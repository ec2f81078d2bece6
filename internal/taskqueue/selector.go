package taskqueue

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// selectorEnv declares the variables a selector expression may reference.
func selectorEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("runner_id", cel.StringType),
		cel.Variable("labels", cel.ListType(cel.StringType)),
	)
}

// CompileSelectorExpr parses and type-checks a selector expression. The
// expression must evaluate to a bool.
func CompileSelectorExpr(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	env, err := selectorEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("selector expression must return bool, got %s", checked.OutputType())
	}
	return env.Program(checked)
}

// ValidateSelector reports whether a selector can be evaluated.
func ValidateSelector(sel *Selector) error {
	if sel == nil || strings.TrimSpace(sel.Expr) == "" {
		return nil
	}
	_, err := CompileSelectorExpr(sel.Expr)
	return err
}

// programCache memoizes compiled selector expressions by source text.
type programCache struct {
	mu    sync.Mutex
	progs map[string]cel.Program
}

func newProgramCache() *programCache {
	return &programCache{progs: make(map[string]cel.Program)}
}

func (c *programCache) get(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.progs[expr]; ok {
		return p, nil
	}
	p, err := CompileSelectorExpr(expr)
	if err != nil {
		return nil, err
	}
	c.progs[expr] = p
	return p, nil
}

// matches reports whether a runner with the given id and labels satisfies sel.
// A nil selector matches every runner. Expressions that fail to compile or
// evaluate do not match.
func (c *programCache) matches(sel *Selector, runnerID string, labels []string) bool {
	if sel == nil {
		return true
	}
	if sel.RunnerID != "" && sel.RunnerID != runnerID {
		return false
	}
	if len(sel.Labels) > 0 && !intersects(sel.Labels, labels) {
		return false
	}
	if strings.TrimSpace(sel.Expr) == "" {
		return true
	}
	prog, err := c.get(sel.Expr)
	if err != nil {
		return false
	}
	if labels == nil {
		labels = []string{}
	}
	out, _, err := prog.Eval(map[string]any{
		"runner_id": runnerID,
		"labels":    labels,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
