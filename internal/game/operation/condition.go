package operation

// Condition is a predicate checked when an Operation fires. ErrorMessage is
// shown to a player requestor when Evaluate returns false.
//
// Conditions run on the scheduler goroutine, possibly long after construction,
// so they should re-resolve live state rather than capture snapshots.
type Condition interface {
	Evaluate() bool
	ErrorMessage() string
}

type funcCondition struct {
	msg string
	fn  func() bool
}

// NewCondition builds a Condition from a closure.
//
// Precondition: fn must not be nil.
func NewCondition(msg string, fn func() bool) Condition {
	if fn == nil {
		panic("operation.NewCondition: fn must not be nil")
	}
	return &funcCondition{msg: msg, fn: fn}
}

func (c *funcCondition) Evaluate() bool       { return c.fn() }
func (c *funcCondition) ErrorMessage() string { return c.msg }

// Always is a Condition that always holds.
func Always() Condition { return NewCondition("", func() bool { return true }) }

// Never is a Condition that always fails with msg.
func Never(msg string) Condition { return NewCondition(msg, func() bool { return false }) }

// Finder resolves a requestor id to whether it is still in the world.
type Finder interface {
	Exists(id uint32) bool
}

// RequestorExists holds while the requestor is still present in f.
func RequestorExists(f Finder, id uint32) Condition {
	return NewCondition("You are no longer here.", func() bool { return f.Exists(id) })
}

// RuleEvaluator evaluates every externally defined rule of one type.
type RuleEvaluator interface {
	EvaluateRule(ruleType string, args map[string]any) bool
}

// Rule holds while every rule of ruleType accepts the arguments built by args
// at evaluation time. A nil evaluator has no rules, so the condition holds.
func Rule(r RuleEvaluator, ruleType, msg string, args func() map[string]any) Condition {
	return NewCondition(msg, func() bool {
		if r == nil {
			return true
		}
		return r.EvaluateRule(ruleType, args())
	})
}
