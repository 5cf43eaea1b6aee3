package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Vars are the variables a rule condition may reference.
type Vars struct {
	WorkspaceKey   string
	ProjectKey     string
	CurrentSubpath string
	Query          string
	Persona        string
}

func (v Vars) activation() map[string]any {
	return map[string]any{
		"workspace_key":   v.WorkspaceKey,
		"project_key":     v.ProjectKey,
		"current_subpath": v.CurrentSubpath,
		"query":           v.Query,
		"persona":         v.Persona,
	}
}

// ConditionEvaluator compiles CEL rule conditions once and caches the programs.
type ConditionEvaluator struct {
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
}

func NewConditionEvaluator(cacheSize int) (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("workspace_key", cel.StringType),
		cel.Variable("project_key", cel.StringType),
		cel.Variable("current_subpath", cel.StringType),
		cel.Variable("query", cel.StringType),
		cel.Variable("persona", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	programs, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, err
	}
	return &ConditionEvaluator{env: env, programs: programs}, nil
}

// Compile checks that expr is a boolean expression.
func (e *ConditionEvaluator) Compile(expr string) (cel.Program, error) {
	if prg, ok := e.programs.Get(expr); ok {
		return prg, nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must be boolean, got %s", out)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program condition: %w", err)
	}
	e.programs.Add(expr, prg)
	return prg, nil
}

// Eval runs expr against vars.
func (e *ConditionEvaluator) Eval(expr string, vars Vars) (bool, error) {
	prg, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars.activation())
	if err != nil {
		return false, fmt.Errorf("eval condition: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", out.Value())
	}
	return b, nil
}
