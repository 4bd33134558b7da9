package domain

import "strings"

// ParseTLDList splits a comma-separated TLD list. Tokens are trimmed, empty
// tokens are dropped and only the first occurrence of a name is kept.
func ParseTLDList(s string) []string {
	var tlds []string
	seen := make(map[string]struct{})
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tlds = append(tlds, token)
	}
	return tlds
}

// ResolveRequestedSet picks the zones a batch will fetch. A non-empty
// explicit list wins and is not checked against the discovered links.
func ResolveRequestedSet(explicit string, discovered []ZoneLink) []RequestedZone {
	if tlds := ParseTLDList(explicit); len(tlds) > 0 {
		zones := make([]RequestedZone, 0, len(tlds))
		for _, tld := range tlds {
			zones = append(zones, RequestedZone{ID: tld, Source: SourceExplicit})
		}
		return zones
	}

	zones := make([]RequestedZone, 0, len(discovered))
	for _, link := range discovered {
		zones = append(zones, RequestedZone{ID: string(link), Source: SourceDiscovered})
	}
	return zones
}

// HasExplicitTLDs reports whether s names at least one TLD
func HasExplicitTLDs(s string) bool {
	return len(ParseTLDList(s)) > 0
}
