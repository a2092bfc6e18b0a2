package qti

import (
	"strconv"
	"strings"
)

// Evaluate runs an item's response processing against a learner response
// and returns the score. Conditions are tried in order; a matching branch
// with continue="No" ends processing. For choice items each response is one
// selected letter; free-text items take a single response.
func Evaluate(q *Item, responses ...string) float64 {
	rp := q.Resprocessing
	score := 0.0
	for _, rc := range rp.Conditions {
		if !allHold(rc.Var.Conditions, responses) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rc.SetVar.Value), 64)
		if err == nil {
			switch rc.SetVar.Action {
			case "Add":
				score += v
			case "Subtract":
				score -= v
			default:
				score = v
			}
		}
		if !strings.EqualFold(rc.Continue, "Yes") {
			break
		}
	}
	return bound(score, rp.Outcomes.Decvar)
}

func bound(v float64, d Decvar) float64 {
	if lo, err := strconv.ParseFloat(d.MinValue, 64); err == nil && v < lo {
		v = lo
	}
	if hi, err := strconv.ParseFloat(d.MaxValue, 64); err == nil && v > hi {
		v = hi
	}
	return v
}

func allHold(conds []Condition, responses []string) bool {
	for _, c := range conds {
		if !holds(c, responses) {
			return false
		}
	}
	return true
}

func holds(c Condition, responses []string) bool {
	switch c.XMLName.Local {
	case "other":
		return true
	case "and":
		return allHold(c.Children, responses)
	case "or":
		for _, ch := range c.Children {
			if holds(ch, responses) {
				return true
			}
		}
		return false
	case "not":
		return !allHold(c.Children, responses)
	case "varequal":
		for _, r := range responses {
			if strings.EqualFold(c.Case, "Yes") {
				if r == c.Value {
					return true
				}
			} else if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(c.Value)) {
				return true
			}
		}
		return false
	case "vargte", "varlte":
		want, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return false
		}
		for _, r := range responses {
			got, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
			if err != nil {
				continue
			}
			if c.XMLName.Local == "vargte" && got >= want || c.XMLName.Local == "varlte" && got <= want {
				return true
			}
		}
		return false
	default:
		return false
	}
}
