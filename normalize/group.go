package normalize

import (
	"sort"
	"strings"
)

// GroupSurnames merges person segments sharing a surname into a single
// "First & First Surname" group while companies pass through untouched.
// Groups and companies are re-interleaved at the position of each one's
// earliest original segment, so first-appearance order is preserved.
//
// Surnames match case-insensitively and byte-identically only;
// near-miss spellings never merge. A nil classify uses
// DefaultClassifier.
func GroupSurnames(list string, classify Classifier) string {
	if classify == nil {
		classify = DefaultClassifier
	}

	raw := strings.Split(list, "&")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}

	parsed := make([]ParsedName, len(segments))
	for i, seg := range segments {
		parsed[i] = parseSegment(seg, i, classify)
	}

	type item struct {
		first int // earliest source index
		text  string
	}
	var items []item

	groups := make(map[string][]ParsedName) // lowercase surname -> members in source order
	var order []string

	for _, name := range parsed {
		if name.Surname == nil {
			items = append(items, item{first: name.SourceIndex, text: name.OriginalText})
			continue
		}
		key := strings.ToLower(*name.Surname)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], name)
	}

	for _, key := range order {
		members := groups[key]
		items = append(items, item{first: members[0].SourceIndex, text: renderGroup(members)})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].first < items[j].first })

	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.text
	}
	return strings.Join(parts, " & ")
}

// renderGroup renders one surname group. Singletons re-emit their
// parsed parts unchanged; multi-member groups join given names with
// "&", then append the first member's surname casing and the union of
// member suffixes.
func renderGroup(members []ParsedName) string {
	if len(members) == 1 {
		m := members[0]
		return joinNonEmpty(m.First, m.Middle, *m.Surname, m.Suffix)
	}
	givens := make([]string, 0, len(members))
	for _, m := range members {
		if given := joinNonEmpty(m.First, m.Middle); given != "" {
			givens = append(givens, given)
		}
	}
	surname := *members[0].Surname
	if len(givens) == 0 {
		// Every member was surname-only ("Smith & SMITH").
		return joinNonEmpty(surname, suffixUnion(members))
	}
	return joinNonEmpty(strings.Join(givens, " & "), surname, suffixUnion(members))
}

// suffixUnion joins the distinct member suffixes with "&" in first
// appearance order, comparing case-insensitively.
func suffixUnion(members []ParsedName) string {
	var union []string
	seen := make(map[string]struct{})
	for _, m := range members {
		if m.Suffix == "" {
			continue
		}
		key := strings.ToLower(m.Suffix)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		union = append(union, m.Suffix)
	}
	return strings.Join(union, " & ")
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
