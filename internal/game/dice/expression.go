package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Expression is a parsed "NdS+M" damage expression.
//
// Invariant: Count >= 1 and Sides >= 2 for any Expression returned by Parse.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Parse parses forms such as "d6", "2d4", "1d8+2" and "3d6-1". Whitespace and
// case are ignored.
//
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(s string) (Expression, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if norm == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	m := exprPattern.FindStringSubmatch(norm)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", s)
	}

	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: %w", s, err)
		}
		count = n
	}
	if count < 1 || count > 100 {
		return Expression{}, fmt.Errorf("dice: die count in %q must be in [1, 100]", s)
	}

	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q: %w", s, err)
	}
	if sides < 2 {
		return Expression{}, fmt.Errorf("dice: die sides in %q must be >= 2", s)
	}

	mod := 0
	if m[3] != "" {
		if mod, err = strconv.Atoi(m[3]); err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", s, err)
		}
	}
	return Expression{Raw: norm, Count: count, Sides: sides, Modifier: mod}, nil
}

// MustParse is Parse for package-level and catalog constants.
func MustParse(s string) Expression {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// Min returns the smallest total the expression can produce.
func (e Expression) Min() int { return e.Count + e.Modifier }

// Max returns the largest total the expression can produce.
func (e Expression) Max() int { return e.Count*e.Sides + e.Modifier }

func (e Expression) String() string { return e.Raw }

// Result is the audit trail of one evaluated expression.
type Result struct {
	Expression string
	Dice       []int
	Modifier   int
}

// Total returns sum(Dice) + Modifier.
func (r Result) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// Roll evaluates e against src.
//
// Postcondition: len(result.Dice) == e.Count and every die is in [1, e.Sides].
func Roll(e Expression, src Source) Result {
	rolled := make([]int, e.Count)
	for i := range rolled {
		rolled[i] = src.Intn(e.Sides) + 1
	}
	return Result{Expression: e.Raw, Dice: rolled, Modifier: e.Modifier}
}
