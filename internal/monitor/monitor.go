package monitor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// DefaultPriority is assigned to warnings that do not carry their own.
const DefaultPriority = 100

// Warning is one active, per-parameter advisory. At most one exists per
// parameter at any time.
type Warning struct {
	Param    string
	Value    any
	Message  string
	Priority int
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Param, w.Message)
}

// Monitor checks values against the rule table and keeps the active warning
// set. Warnings for an already-warned parameter are dropped until the first
// clears, so the operator sees the original cause, not the latest symptom.
type Monitor struct {
	log   *telemetry.Logger
	rules map[string]*Rule

	mu     sync.Mutex
	active map[string]*Warning
	order  []string
}

// New creates a Monitor over the given rule table.
func New(log *telemetry.Logger, rules map[string]*Rule) *Monitor {
	if rules == nil {
		rules = make(map[string]*Rule)
	}
	return &Monitor{
		log:    log,
		rules:  rules,
		active: make(map[string]*Warning),
	}
}

// CheckValue validates one named value against its rule. Parameters without
// a rule are ignored at DEBUG. A failing check creates a warning; a passing
// check clears any existing warning for the parameter.
func (m *Monitor) CheckValue(name string, value any) {
	rule, ok := m.rules[name]
	if !ok {
		m.log.Debugf("monitor", "no rule for parameter %s", name)
		return
	}

	msg, failed := m.applyRule(rule, value)
	if failed {
		m.CreateWarning(Warning{Param: name, Value: value, Message: msg, Priority: DefaultPriority})
		return
	}
	m.ClearWarning(name)
}

// applyRule returns the failure message and whether the value failed.
func (m *Monitor) applyRule(rule *Rule, value any) (string, bool) {
	switch rule.Kind {
	case KindNumeric:
		return m.checkNumeric(rule, value)
	case KindBoolean:
		b, ok := value.(bool)
		if !ok {
			return fmt.Sprintf("expected a boolean, got %v", value), true
		}
		if b != *rule.Expected {
			return fmt.Sprintf("expected %v, got %v", *rule.Expected, b), true
		}
	case KindCategorical:
		s := fmt.Sprintf("%v", value)
		for _, v := range rule.Valid {
			if s == v {
				return "", false
			}
		}
		return fmt.Sprintf("%q is not an allowed value", s), true
	case KindArray:
		return m.checkArray(rule, value)
	case KindTimestamp:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected a timestamp string, got %v", value), true
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Sprintf("%q is not a valid timestamp", s), true
		}
		if !t.Before(rule.before) {
			return fmt.Sprintf("timestamp %s is not before %s", s, rule.Before), true
		}
	case KindMappedError:
		code, ok := toInt(value)
		if !ok {
			return fmt.Sprintf("expected an error code, got %v", value), true
		}
		if code == *rule.Typical {
			return "", false
		}
		if msg, known := rule.Codes[code]; known {
			return msg, true
		}
		return fmt.Sprintf("unknown error code %d", code), true
	}
	return "", false
}

func (m *Monitor) checkNumeric(rule *Rule, value any) (string, bool) {
	// Booleans convert to numbers in many configs; they are never valid
	// numeric readings.
	if _, isBool := value.(bool); isBool {
		return fmt.Sprintf("expected a number, got boolean %v", value), true
	}
	f, ok := toFloat(value)
	if !ok {
		return fmt.Sprintf("expected a number, got %v", value), true
	}
	if f < *rule.Min || f > *rule.Max {
		return fmt.Sprintf("%v outside allowed range [%v, %v]", f, *rule.Min, *rule.Max), true
	}
	return "", false
}

func (m *Monitor) checkArray(rule *Rule, value any) (string, bool) {
	elems, ok := toFloatSlice(value)
	if !ok {
		return fmt.Sprintf("expected a numeric array, got %v", value), true
	}
	for i, f := range elems {
		if f < *rule.Min || f > *rule.Max {
			return fmt.Sprintf("element %d (%v) outside allowed range [%v, %v]",
				i, f, *rule.Min, *rule.Max), true
		}
	}
	return "", false
}

// CreateWarning activates w unless the parameter already has an active
// warning, in which case w is silently dropped.
func (m *Monitor) CreateWarning(w Warning) {
	if w.Priority == 0 {
		w.Priority = DefaultPriority
	}
	m.mu.Lock()
	if _, exists := m.active[w.Param]; exists {
		m.mu.Unlock()
		return
	}
	m.active[w.Param] = &w
	m.order = append(m.order, w.Param)
	m.mu.Unlock()

	m.log.Warnf("monitor", "%s", w.String())
}

// ClearWarning removes the active warning for param, if any.
func (m *Monitor) ClearWarning(param string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[param]; !exists {
		return
	}
	delete(m.active, param)
	for i, p := range m.order {
		if p == param {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Warnings returns the active warnings in creation order.
func (m *Monitor) Warnings() []Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Warning, 0, len(m.order))
	for _, param := range m.order {
		out = append(out, *m.active[param])
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloatSlice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}
