package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
)

// When is the match predicate for a PolicyRule. A nil field is a wildcard
// for that dimension; Expr, if set, is an additional compiled CEL guard
// evaluated over effect_kind/origin_kind/cap_name that must also hold.
type When struct {
	EffectKind *string `json:"effect_kind,omitempty"`
	OriginKind *string `json:"origin_kind,omitempty"`
	CapName    *string `json:"cap_name,omitempty"`
	Expr       string  `json:"expr,omitempty"`
}

// Decision is the outcome of a matched rule, or the default deny.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Rule pairs a When predicate with the Decision returned on match.
type Rule struct {
	When     When     `json:"when"`
	Decision Decision `json:"decision"`
}

// PolicySet is an ordered rule list evaluated against an EffectIntent's
// (effect_kind, origin_kind, cap_name): first match wins; no match is a
// default deny carrying reason "default_deny".
type PolicySet struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []Rule
	progs map[int]cel.Program
}

// NewPolicySet creates an empty PolicySet with its CEL environment for
// `when.expr` predicates.
func NewPolicySet() (*PolicySet, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("effect_kind", types.StringType),
			decls.NewVariable("origin_kind", types.StringType),
			decls.NewVariable("cap_name", types.StringType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("governance: create CEL env: %w", err)
	}
	return &PolicySet{env: env, progs: make(map[int]cel.Program)}, nil
}

// SetRules replaces the entire ordered rule list, recompiling any CEL guard
// expressions up front so Evaluate never compiles on the hot path.
func (p *PolicySet) SetRules(rules []Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	progs := make(map[int]cel.Program, len(rules))
	for i, r := range rules {
		if r.When.Expr == "" {
			continue
		}
		ast, issues := p.env.Compile(r.When.Expr)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("governance: compile rule %d: %w", i, issues.Err())
		}
		prg, err := p.env.Program(ast)
		if err != nil {
			return fmt.Errorf("governance: program rule %d: %w", i, err)
		}
		progs[i] = prg
	}

	p.rules = rules
	p.progs = progs
	return nil
}

// Evaluate finds the first rule whose When predicate matches and returns its
// Decision; absent a match, returns a default deny.
func (p *PolicySet) Evaluate(effectKind, originKind, capName string) Decision {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i, r := range p.rules {
		if !matchesField(r.When.EffectKind, effectKind) {
			continue
		}
		if !matchesField(r.When.OriginKind, originKind) {
			continue
		}
		if !matchesField(r.When.CapName, capName) {
			continue
		}
		if prg, ok := p.progs[i]; ok {
			out, _, err := prg.Eval(map[string]interface{}{
				"effect_kind": effectKind,
				"origin_kind": originKind,
				"cap_name":    capName,
			})
			if err != nil {
				return Decision{Allow: false, Reason: fmt.Sprintf("policy expr error: %v", err)}
			}
			if allowed, ok := out.Value().(bool); !ok || !allowed {
				continue
			}
		}
		return r.Decision
	}

	return Decision{Allow: false, Reason: "default_deny"}
}

func matchesField(want *string, got string) bool {
	return want == nil || *want == got
}
