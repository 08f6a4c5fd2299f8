package normalize

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Class partitions name segments into persons and entities.
type Class int

const (
	// ClassPerson marks a segment parsed as an individual's name.
	ClassPerson Class = iota
	// ClassEntity marks a company or organization segment. Entities
	// are excluded from surname grouping and re-emitted verbatim.
	ClassEntity
)

// Classifier decides whether a single &-delimited segment names a
// person or an entity. DefaultClassifier is list-driven; callers with
// better domain knowledge can swap in their own without touching the
// grouping algorithm.
type Classifier func(segment string) Class

// entityIndicators are suffix tokens that mark a segment as a company.
// The list is finite and deliberate: names outside it ("Smith Family
// Trust") parse as persons with the last word as surname. That
// misclassification is documented behavior; extend the list through a
// custom Classifier rather than patching the grouper.
var entityIndicators = []string{
	"LLC", "Inc", "Corp", "Corporation", "Ltd", "Limited",
	"LP", "LLP", "PC", "PA",
}

// personSuffixes are honorific or role tokens that trail a person's
// name without being part of it.
var personSuffixes = []string{
	"Jr", "Sr", "II", "III", "IV", "V",
	"Esq", "MD", "PhD", "DDS", "Trustee", "Trustees",
}

var (
	entityIndicatorSet = lowerSet(entityIndicators)
	personSuffixSet    = lowerSet(personSuffixes)
)

func lowerSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[strings.ToLower(tok)] = struct{}{}
	}
	return set
}

// cleanToken lowercases tok and strips trailing punctuation for list
// comparison, so "Jr." and "jr" both match.
func cleanToken(tok string) string {
	return strings.ToLower(strings.TrimRight(tok, ".,;:"))
}

// DefaultClassifier implements the stock person/entity test: a segment
// is an entity when any token matches an entity indicator; otherwise it
// is a person when, after trailing suffix tokens are removed, at least
// one word remains and every remaining word is letters, hyphens, or
// apostrophes only. Anything else is an entity.
func DefaultClassifier(segment string) Class {
	tokens := strings.Fields(segment)
	if len(tokens) == 0 {
		return ClassEntity
	}
	isIndicator := func(tok string) bool {
		_, ok := entityIndicatorSet[cleanToken(tok)]
		return ok
	}
	if lo.SomeBy(tokens, isIndicator) {
		return ClassEntity
	}
	words, _ := splitSuffixes(tokens)
	if len(words) == 0 || !lo.EveryBy(words, isNameWord) {
		return ClassEntity
	}
	return ClassPerson
}

// isNameWord reports whether w is letters, hyphens, and apostrophes only.
func isNameWord(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

// splitSuffixes pops recognized suffix tokens off the end of tokens,
// returning the remaining words and the suffixes in reading order.
// Original token casing is preserved on both sides.
func splitSuffixes(tokens []string) (words, suffixes []string) {
	words = tokens
	for len(words) > 0 {
		last := words[len(words)-1]
		if _, ok := personSuffixSet[cleanToken(last)]; !ok {
			break
		}
		suffixes = append([]string{last}, suffixes...)
		words = words[:len(words)-1]
	}
	return words, suffixes
}

// ParsedName is one parsed &-delimited segment of a named-insured list.
// It is ephemeral: produced during grouping, never persisted.
type ParsedName struct {
	// First is the leading given name, empty for surname-only segments.
	First string
	// Middle is everything between First and Surname, space-joined.
	Middle string
	// Surname is nil for entity segments, which never group.
	Surname *string
	// Suffix carries recognized trailing tokens (Jr, III, Trustees),
	// space-joined in reading order.
	Suffix string
	// SourceIndex is the segment's position in the original list.
	SourceIndex int
	// OriginalText is the segment exactly as split, edges trimmed.
	OriginalText string
}

// parseSegment parses one trimmed segment. classify decides the
// person/entity split; entity segments keep only OriginalText.
func parseSegment(segment string, index int, classify Classifier) ParsedName {
	name := ParsedName{SourceIndex: index, OriginalText: segment}
	if classify(segment) != ClassPerson {
		return name
	}
	words, suffixes := splitSuffixes(strings.Fields(segment))
	switch len(words) {
	case 0:
		// The classifier called this a person but only suffix tokens
		// remain. Treat it as an entity rather than invent a surname.
		return ParsedName{SourceIndex: index, OriginalText: segment}
	case 1:
		name.Surname = &words[0]
	case 2:
		name.First = words[0]
		name.Surname = &words[1]
	default:
		name.First = words[0]
		name.Middle = strings.Join(words[1:len(words)-1], " ")
		name.Surname = &words[len(words)-1]
	}
	name.Suffix = strings.Join(suffixes, " ")
	return name
}
