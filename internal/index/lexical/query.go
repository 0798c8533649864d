package lexical

import "strings"

// atom is a single positive or negated match unit. A phrase of length one
// is a plain term.
type atom struct {
	negate bool
	phrase []string
}

// boolQuery is a disjunction of conjunctive groups:
// `a b OR c NOT d` parses to (a AND b) OR (c AND NOT d).
type boolQuery struct {
	groups [][]atom
}

// empty reports whether the query carries no positive atoms at all.
func (q *boolQuery) empty() bool {
	for _, g := range q.groups {
		for _, a := range g {
			if !a.negate {
				return false
			}
		}
	}
	return true
}

// positiveTerms returns every positive term across the query, for scoring.
func (q *boolQuery) positiveTerms() []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, g := range q.groups {
		for _, a := range g {
			if a.negate {
				continue
			}
			for _, t := range a.phrase {
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// parseQuery parses a boolean/phrase expression. AND is implicit between
// adjacent units; OR splits groups; NOT negates the following unit; quoted
// text forms an exact phrase. Operator words are case-sensitive uppercase,
// matching their conventional query syntax.
func parseQuery(query string) *boolQuery {
	q := &boolQuery{}
	group := []atom{}
	negateNext := false

	flushGroup := func() {
		if len(group) > 0 {
			q.groups = append(q.groups, group)
			group = []atom{}
		}
	}

	for _, unit := range splitUnits(query) {
		switch unit {
		case "AND":
			continue
		case "OR":
			flushGroup()
			negateNext = false
			continue
		case "NOT":
			negateNext = true
			continue
		}

		phrase := TokenizeTerms(unit)
		if len(phrase) == 0 {
			negateNext = false
			continue
		}
		group = append(group, atom{negate: negateNext, phrase: phrase})
		negateNext = false
	}
	flushGroup()
	return q
}

// splitUnits splits a query into operator words, bare words and quoted
// phrases (returned unquoted, possibly multi-word).
func splitUnits(query string) []string {
	var units []string
	var current strings.Builder
	inQuotes := false

	flush := func() {
		if current.Len() > 0 {
			units = append(units, current.String())
			current.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			flush()
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return units
}
