package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/rs/zerolog"
)

// Engine evaluates the loaded rule phases against per-patient contexts.
// Every condition is compiled exactly once, when the engine is built; a
// condition that does not compile aborts startup before any patient is
// processed. The engine itself never mutates a context: its only side
// effects are appending matched actions to the audit trail.
type Engine struct {
	env      *cel.Env
	set      *Set
	programs map[string][]compiledRule
	log      zerolog.Logger
}

type compiledRule struct {
	rule Rule
	prog cel.Program
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger used to report skipped rules.
func WithLogger(log zerolog.Logger) Option {
	return func(en *Engine) { en.log = log }
}

// NewEngine compiles every rule of every phase in set. fields is the
// closed universe of context field names rules may reference; a
// condition naming anything else fails compilation here rather than
// during the batch.
func NewEngine(set *Set, fields []string, opts ...Option) (*Engine, error) {
	env, err := newEnv(fields)
	if err != nil {
		return nil, err
	}

	en := &Engine{
		env:      env,
		set:      set,
		programs: make(map[string][]compiledRule, len(set.Keys())),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(en)
	}

	for _, key := range set.Keys() {
		phaseRules, _ := set.Phase(key)
		compiled := make([]compiledRule, 0, len(phaseRules))
		for _, r := range phaseRules {
			prog, err := en.compile(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("phase %q, rule %q: %w", key, r.Name, err)
			}
			compiled = append(compiled, compiledRule{rule: r, prog: prog})
		}
		en.programs[key] = compiled
	}

	return en, nil
}

// newEnv declares every known context field as a dynamic CEL variable,
// so conditions reference fields by bare name.
func newEnv(fields []string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(fields))
	for _, f := range fields {
		opts = append(opts, cel.Variable(f, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func (en *Engine) compile(condition string) (cel.Program, error) {
	ast, issues := en.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	// Cost limit guards against pathological expressions in the rule file.
	prog, err := en.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// RequirePhases verifies at startup that every phase the workflow will
// ask for exists in the loaded set.
func (en *Engine) RequirePhases(keys ...string) error {
	for _, key := range keys {
		if _, ok := en.programs[key]; !ok {
			return fmt.Errorf("required rule phase %q is not configured", key)
		}
	}
	return nil
}

// Execute evaluates every rule of the named phase against facts, in
// rule order and without short-circuiting between rules. Each matched
// rule contributes all of its action strings, in order, to both the
// returned result and the trail. A rule whose condition cannot be
// evaluated against these facts (typically a field absent from the
// context) is skipped and counted as non-matching.
//
// Execute never modifies facts. An unknown phase key is an error; the
// workflow converts it to a startup failure via RequirePhases.
func (en *Engine) Execute(phaseKey string, facts map[string]any, trail *Trail) (Result, error) {
	compiled, ok := en.programs[phaseKey]
	if !ok {
		return Result{}, fmt.Errorf("rule phase %q is not configured", phaseKey)
	}

	var result Result
	for _, cr := range compiled {
		out, _, err := cr.prog.Eval(facts)
		if err != nil {
			// Undefined field for this context shape. The rule is
			// counted as non-matching and the phase continues.
			en.log.Debug().
				Str("phase", phaseKey).
				Str("rule", cr.rule.Name).
				Err(err).
				Msg("rule skipped")
			continue
		}

		matched, _ := out.Value().(bool)
		if !matched {
			continue
		}

		result.Matched++
		result.Actions = append(result.Actions, cr.rule.Actions...)
		trail.Append(cr.rule.Actions...)
	}

	return result, nil
}
