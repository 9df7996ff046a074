// Package exclusion decides which raw order lines never reach the canonical
// table: banned customers, banned products, test orders, and the Platform B
// duplicate-renewal pattern. Everything here is a pure function of its inputs
// except Cache, which memoizes the banned list for one build invocation.
package exclusion

import (
	"strings"

	"github.com/ignite/order-reconciler/internal/domain"
)

// gmailDomains ignore dots in the local part.
var gmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// NormalizeEmail canonicalizes an address for comparison:
// lowercase, no "mailto:", first token only, no "+tag", and no dots in the
// local part of gmail-family addresses. Input without an "@" is returned
// lowercased and trimmed.
func NormalizeEmail(raw string) string {
	e := strings.ToLower(strings.TrimSpace(raw))
	e = strings.TrimPrefix(e, "mailto:")
	if i := strings.IndexAny(e, " \t\r\n,;|"); i >= 0 {
		e = e[:i]
	}
	e = strings.Trim(e, "\"'<>")

	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 {
		return e
	}
	local, dom := e[:at], e[at+1:]
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}
	if gmailDomains[dom] {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + dom
}

// NormalizeDomain lowercases a domain entry and drops a leading "@" or ".".
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimLeft(d, "@.")
}

// emailDomain returns the part after the last "@" of a normalized address.
func emailDomain(normalized string) string {
	at := strings.LastIndex(normalized, "@")
	if at < 0 {
		return ""
	}
	return normalized[at+1:]
}

// IsBannedEmail reports whether email matches the banned list: either its
// normalized form is an exact entry, or its domain equals a banned domain or
// is a subdomain of one.
func IsBannedEmail(email string, list domain.BannedList) bool {
	norm := NormalizeEmail(email)
	if norm == "" {
		return false
	}
	if _, ok := list.ExactEmails[norm]; ok {
		return true
	}
	if len(list.BannedDomains) == 0 {
		return false
	}
	// Walking the domain's suffixes is the same test as
	// domain == d || strings.HasSuffix(domain, "."+d) for every banned d.
	dom := emailDomain(norm)
	for dom != "" {
		if _, ok := list.BannedDomains[dom]; ok {
			return true
		}
		dot := strings.Index(dom, ".")
		if dot < 0 {
			break
		}
		dom = dom[dot+1:]
	}
	return false
}

// BuildBannedList normalizes persisted entries into lookup sets. Entries of
// unknown kind are classified by the presence of an "@" with a local part.
func BuildBannedList(entries []domain.BannedEntry) domain.BannedList {
	list := domain.NewBannedList()
	for _, e := range entries {
		kind := e.Kind
		if kind == "" {
			if at := strings.Index(strings.TrimSpace(e.Entry), "@"); at > 0 {
				kind = domain.BannedEmail
			} else {
				kind = domain.BannedDomain
			}
		}
		switch kind {
		case domain.BannedEmail:
			if n := NormalizeEmail(e.Entry); n != "" {
				list.ExactEmails[n] = struct{}{}
			}
		case domain.BannedDomain:
			if d := NormalizeDomain(e.Entry); d != "" {
				list.BannedDomains[d] = struct{}{}
			}
		}
	}
	return list
}
