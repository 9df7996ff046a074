package exclusion

import (
	"strings"
	"time"
)

// ProductRules excludes lines whose product name contains any keyword.
//
// Matching is a case-insensitive substring test, not a word match: the
// keyword "tusk" excludes "Tusk Skid Plate XL" and also "tuskegee widget".
// A false positive silently drops a real order line, so keywords come from
// configuration and should be reviewed like any other data rule.
type ProductRules struct {
	keywords []string
}

// NewProductRules lowercases and de-blanks the configured keywords.
func NewProductRules(keywords []string) ProductRules {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return ProductRules{keywords: out}
}

// IsBanned reports whether productName contains a banned keyword.
func (r ProductRules) IsBanned(productName string) bool {
	name := strings.ToLower(productName)
	if name == "" {
		return false
	}
	for _, k := range r.keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the active keywords.
func (r ProductRules) Keywords() []string {
	return append([]string(nil), r.keywords...)
}

// RenewalRule matches Platform B renewal orders that duplicate work already
// billed elsewhere: orders dated in Year whose product name contains a
// jurisdiction token, an entity-type token, and a token starting with a
// renewal stem. A zero Year disables the rule.
type RenewalRule struct {
	Year          int
	Jurisdictions []string
	Entities      []string
	RenewalStems  []string
}

// Matches reports whether a line dated orderDate with productName is part of
// an excluded renewal order. Lines without a date never match.
func (r RenewalRule) Matches(orderDate *time.Time, productName string) bool {
	if r.Year == 0 || orderDate == nil || orderDate.Year() != r.Year {
		return false
	}
	tokens := productTokens(productName)
	if len(tokens) == 0 {
		return false
	}
	return anyTokenEquals(tokens, r.Jurisdictions) &&
		anyTokenEquals(tokens, r.Entities) &&
		anyTokenHasPrefix(tokens, r.RenewalStems)
}

// productTokens lowercases s, deletes dots and apostrophes so "L.L.C." reads
// as "llc", and splits on everything else that is not a letter or digit.
func productTokens(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '.' || r == '\'':
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func anyTokenEquals(tokens, wanted []string) bool {
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		for _, t := range tokens {
			if w != "" && t == w {
				return true
			}
		}
	}
	return false
}

func anyTokenHasPrefix(tokens, stems []string) bool {
	for _, s := range stems {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, t := range tokens {
			if s != "" && strings.HasPrefix(t, s) {
				return true
			}
		}
	}
	return false
}
