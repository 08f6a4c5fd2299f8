// Package normalize implements the canonical text rules for insurance
// form fields: policy numbers and named-insured lists.
//
// All functions are pure. A Result never carries an error; a value that
// differs from its canonical form is a suggestion for the caller to
// surface, not a failure.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Fixed human messages surfaced next to a field whose value is not
// canonical.
const (
	policyNumberMessage = "Policy number should not contain whitespace"
	namedInsuredMessage = "Named insured can be normalized"
)

// Result is the outcome of normalizing a single field value.
type Result struct {
	// IsValid reports whether the input already equals its canonical form.
	IsValid bool `json:"isValid" msgpack:"isValid"`
	// FixedValue is the canonical form (the input itself when valid).
	FixedValue string `json:"fixedValue" msgpack:"fixedValue"`
	// Message is a fixed human-readable hint, empty when valid.
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

func valid(text string) Result {
	return Result{IsValid: true, FixedValue: text}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizePolicyNumber strips all whitespace from a policy number.
// Empty and whitespace-only inputs are valid and returned unchanged.
func NormalizePolicyNumber(text string) Result {
	if strings.TrimSpace(text) == "" {
		return valid(text)
	}
	fixed := whitespaceRun.ReplaceAllString(text, "")
	if fixed == text {
		return valid(text)
	}
	return Result{FixedValue: fixed, Message: policyNumberMessage}
}

// NormalizeNamedInsured rewrites a named-insured list into canonical
// form. The rules run in a fixed order; each step consumes the previous
// step's output:
//
//  1. trim edge punctuation and whitespace
//  2. strip periods, protecting web-domain tokens
//  3. canonicalize conjunctions to "&" (entity commas become spaces)
//  4. keep the literal word "or" untouched
//  5. strip the leading article of each segment unless integral
//  6. strip trailing ownership descriptors (JT, HWJT, et al)
//  7. group persons sharing a surname
//  8. collapse whitespace runs
//  9. trim edge punctuation again
//
// Empty and whitespace-only inputs are valid and returned unchanged.
func NormalizeNamedInsured(text string) Result {
	if strings.TrimSpace(text) == "" {
		return valid(text)
	}
	fixed := trimEdges(text)
	fixed = stripPeriods(fixed)
	fixed = canonicalizeConjunctions(fixed)
	fixed = stripArticles(fixed)
	fixed = stripDescriptors(fixed)
	fixed = GroupSurnames(fixed, DefaultClassifier)
	fixed = whitespaceRun.ReplaceAllString(fixed, " ")
	fixed = trimEdges(fixed)
	if fixed == text {
		return valid(text)
	}
	return Result{FixedValue: fixed, Message: namedInsuredMessage}
}

// trimEdges removes leading and trailing commas, semicolons, periods,
// and whitespace.
func trimEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '.' || unicode.IsSpace(r)
	})
}

// domainToken matches word.tld for the protected TLD set. The dot is
// swapped for a placeholder before period stripping and restored after,
// so "example.com" survives while "St. James" loses its period.
var domainToken = regexp.MustCompile(
	`(?i)\b([A-Za-z0-9-]+)\.(com|edu|org|io|net|gov|mil|info|biz|co|us|uk|ca)\b`)

// domainDot stands in for a protected period. U+E000 is private-use
// and does not occur in field input.
const domainDot = ""

func stripPeriods(s string) string {
	s = domainToken.ReplaceAllString(s, "${1}"+domainDot+"${2}")
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, domainDot, ".")
}

// entityComma matches a comma directly preceding an entity suffix
// ("ABC, LLC"). Such commas separate a name from its own suffix, not
// two insureds, so they become spaces rather than conjunctions.
var entityComma = regexp.MustCompile(
	`(?i),\s*(Corporation|Corp|Limited|Ltd|LLC|LLP|LP|Inc|PC|PA)\b`)

// andWord matches the standalone conjunction "and" in any case. The
// word "or" never converts; it marks alternatives, not co-insureds.
var andWord = regexp.MustCompile(`(?i)\band\b`)

func canonicalizeConjunctions(s string) string {
	s = entityComma.ReplaceAllString(s, " $1")
	s = strings.ReplaceAll(s, ";", " & ")
	s = strings.ReplaceAll(s, ",", " & ")
	return andWord.ReplaceAllString(s, "&")
}

// leadingArticle matches The/A/An at the start of a segment.
var leadingArticle = regexp.MustCompile(`(?i)^(?:the|an|a)\s+`)

// stripArticles drops the leading article of every &-joined segment
// unless the article is integral to the name.
func stripArticles(s string) string {
	segments := strings.Split(s, "&")
	for i, seg := range segments {
		segments[i] = stripLeadingArticle(strings.TrimSpace(seg))
	}
	return strings.Join(segments, " & ")
}

func stripLeadingArticle(segment string) string {
	loc := leadingArticle.FindStringIndex(segment)
	if loc == nil {
		return segment
	}
	rest := segment[loc[1]:]
	if integralArticle(rest) {
		return segment
	}
	return rest
}

// integralArticle reports whether the text after a leading article
// still needs the article to read as a name: single-word names
// ("The Who"), "Plus" brandings ("A Plus Preschool"), single-letter
// firms ("A B Trucking"), and numeric starts ("The 3 Amigos").
func integralArticle(rest string) bool {
	if rest == "" || !strings.ContainsRune(rest, ' ') {
		return true
	}
	if strings.HasPrefix(rest, "Plus ") {
		return true
	}
	runes := []rune(rest)
	if unicode.IsUpper(runes[0]) && runes[1] == ' ' {
		return true
	}
	return unicode.IsDigit(runes[0])
}

// trailingDescriptor matches known ownership descriptors at the end of
// the value. Comma conjunctions are already "&" by the time this runs,
// so the separator set accepts both forms.
var trailingDescriptor = regexp.MustCompile(`(?i)[\s,&]+(?:hwjt|jt|et\s+al(?:ia)?)\s*$`)

// stripDescriptors removes trailing descriptors until none remain, so
// stacked forms ("... HWJT JT") normalize in one call.
func stripDescriptors(s string) string {
	for {
		next := trailingDescriptor.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}
