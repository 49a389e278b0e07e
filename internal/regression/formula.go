package regression

import (
	"fmt"
	"strings"
)

// Term is one right-hand-side variable of a formula.
type Term struct {
	Name        string
	Categorical bool
}

// String renders the term as written in a formula.
func (t Term) String() string {
	if t.Categorical {
		return "C(" + t.Name + ")"
	}
	return t.Name
}

// Formula is a parsed model formula of the form
//
//	y ~ a + b + C(c)
//
// where C(...) marks a categorical variable expanded into treatment dummies.
type Formula struct {
	Response string
	Terms    []Term
}

// ParseFormula parses a formula. Duplicate terms are rejected.
func ParseFormula(s string) (Formula, error) {
	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return Formula{}, fmt.Errorf("formula %q: missing '~'", s)
	}
	f := Formula{Response: strings.TrimSpace(lhs)}
	if f.Response == "" || strings.ContainsAny(f.Response, "+~()") {
		return Formula{}, fmt.Errorf("formula %q: invalid response", s)
	}

	seen := make(map[string]bool)
	for _, raw := range strings.Split(rhs, "+") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return Formula{}, fmt.Errorf("formula %q: empty term", s)
		}
		term := Term{Name: tok}
		if strings.HasPrefix(tok, "C(") && strings.HasSuffix(tok, ")") {
			term = Term{Name: strings.TrimSpace(tok[2 : len(tok)-1]), Categorical: true}
		}
		if term.Name == "" || strings.ContainsAny(term.Name, "~()") {
			return Formula{}, fmt.Errorf("formula %q: invalid term %q", s, tok)
		}
		if term.Name == f.Response {
			return Formula{}, fmt.Errorf("formula %q: %s appears on both sides", s, term.Name)
		}
		if seen[term.Name] {
			return Formula{}, fmt.Errorf("formula %q: duplicate term %s", s, term.Name)
		}
		seen[term.Name] = true
		f.Terms = append(f.Terms, term)
	}
	return f, nil
}

// Variables returns the response followed by every term name.
func (f Formula) Variables() []string {
	out := make([]string, 0, len(f.Terms)+1)
	out = append(out, f.Response)
	for _, t := range f.Terms {
		out = append(out, t.Name)
	}
	return out
}

// String renders the formula canonically.
func (f Formula) String() string {
	parts := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		parts[i] = t.String()
	}
	return f.Response + " ~ " + strings.Join(parts, " + ")
}
