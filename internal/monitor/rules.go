// Package monitor validates cached parameter values against a per-parameter
// rule table and surfaces failures as deduplicated warnings.
package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleKind enumerates the supported rule types. Unknown kinds are rejected
// when the rule file loads, not when a value is checked.
type RuleKind string

const (
	KindNumeric     RuleKind = "numeric"
	KindBoolean     RuleKind = "boolean"
	KindCategorical RuleKind = "categorical"
	KindArray       RuleKind = "array"
	KindTimestamp   RuleKind = "timestamp"
	KindMappedError RuleKind = "mappedError"
)

// Rule is one parameter's constraint. Kind selects which constraint fields
// apply; the rest stay zero.
type Rule struct {
	Kind RuleKind `yaml:"type"`

	// numeric and array: inclusive bounds.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// boolean.
	Expected *bool `yaml:"expected"`

	// categorical.
	Valid []string `yaml:"valid"`

	// timestamp: values must parse as ISO-8601 and be strictly earlier.
	Before string `yaml:"before"`
	before time.Time

	// mappedError: Typical is the healthy code; Codes maps every known
	// fault code to its operator-facing description.
	Typical *int           `yaml:"typical"`
	Codes   map[int]string `yaml:"codes"`
}

// validate checks that the rule's constraint fields match its kind.
func (r *Rule) validate(param string) error {
	switch r.Kind {
	case KindNumeric, KindArray:
		if r.Min == nil || r.Max == nil {
			return fmt.Errorf("rule %s: %s rule requires min and max", param, r.Kind)
		}
		if *r.Min > *r.Max {
			return fmt.Errorf("rule %s: min %v exceeds max %v", param, *r.Min, *r.Max)
		}
	case KindBoolean:
		if r.Expected == nil {
			return fmt.Errorf("rule %s: boolean rule requires expected", param)
		}
	case KindCategorical:
		if len(r.Valid) == 0 {
			return fmt.Errorf("rule %s: categorical rule requires a non-empty valid set", param)
		}
	case KindTimestamp:
		t, err := time.Parse(time.RFC3339, r.Before)
		if err != nil {
			return fmt.Errorf("rule %s: bad timestamp bound %q: %w", param, r.Before, err)
		}
		r.before = t
	case KindMappedError:
		if r.Typical == nil {
			return fmt.Errorf("rule %s: mappedError rule requires typical", param)
		}
	default:
		return fmt.Errorf("rule %s: unsupported rule type %q", param, r.Kind)
	}
	return nil
}

// LoadRules reads a YAML rule file mapping parameter name to Rule and
// validates every entry. Any malformed rule fails the whole load.
func LoadRules(path string) (map[string]*Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("monitor: read rules %s: %w", path, err)
	}
	var rules map[string]*Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("monitor: parse rules %s: %w", path, err)
	}
	for param, rule := range rules {
		if err := rule.validate(param); err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
	}
	return rules, nil
}
