package rules

import "fmt"

// Rule is one declarative decision: a boolean CEL condition over named
// context fields plus the comment strings recorded when it matches.
type Rule struct {
	Name      string   `mapstructure:"name"`
	Condition string   `mapstructure:"condition"`
	Actions   []string `mapstructure:"actions"`
}

// Phase is a named ordered group of rules evaluated together against
// one context.
type Phase struct {
	Key   string `mapstructure:"key"`
	Rules []Rule `mapstructure:"rules"`
}

// Set holds every phase loaded for a batch run. It is built once at
// startup and read-only afterwards.
type Set struct {
	phases map[string][]Rule
	keys   []string
}

// NewSet builds a Set from phases in load order. A duplicate phase key
// is a configuration mistake.
func NewSet(phases []Phase) (*Set, error) {
	s := &Set{phases: make(map[string][]Rule, len(phases))}
	for _, p := range phases {
		if _, dup := s.phases[p.Key]; dup {
			return nil, fmt.Errorf("duplicate rule phase %q", p.Key)
		}
		s.phases[p.Key] = p.Rules
		s.keys = append(s.keys, p.Key)
	}
	return s, nil
}

// Phase returns the ordered rules of one phase.
func (s *Set) Phase(key string) ([]Rule, bool) {
	rules, ok := s.phases[key]
	return rules, ok
}

// Keys returns the phase keys in load order.
func (s *Set) Keys() []string {
	return s.keys
}

// Result is the outcome of executing one phase: how many rules matched
// and every matched rule's action strings in rule order.
type Result struct {
	Matched int
	Actions []string
}
