package normalize

import (
	"strings"
	"testing"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		segment string
		want    Class
	}{
		{"John Smith", ClassPerson},
		{"Madonna", ClassPerson},
		{"O'Brien-Smith", ClassPerson},
		{"John Paul George Smith", ClassPerson},
		{"Charlie Smith Trustees", ClassPerson},
		{"ABC Company LLC", ClassEntity},
		{"ABC, Inc", ClassEntity},
		{"widgets ltd", ClassEntity},
		{"3 Amigos", ClassEntity},
		{"Suite #4 Holdings", ClassEntity},
		{"", ClassEntity},
		{"Jr", ClassEntity},
		// Documented misclassification: no indicator token, so the
		// last word reads as a surname.
		{"Smith Family Trust", ClassPerson},
	}

	for _, tt := range tests {
		name := tt.segment
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			if got := DefaultClassifier(tt.segment); got != tt.want {
				t.Errorf("DefaultClassifier(%q) = %v, want %v", tt.segment, got, tt.want)
			}
		})
	}
}

func TestParseSegment(t *testing.T) {
	surname := func(s string) *string { return &s }

	tests := []struct {
		name    string
		segment string
		want    ParsedName
	}{
		{
			"first and surname",
			"John Smith",
			ParsedName{First: "John", Surname: surname("Smith")},
		},
		{
			"surname only",
			"Madonna",
			ParsedName{Surname: surname("Madonna")},
		},
		{
			"middles joined",
			"John Paul George Smith",
			ParsedName{First: "John", Middle: "Paul George", Surname: surname("Smith")},
		},
		{
			"suffix popped",
			"Charlie Smith Trustees",
			ParsedName{First: "Charlie", Surname: surname("Smith"), Suffix: "Trustees"},
		},
		{
			"stacked suffixes keep reading order",
			"John Smith Jr Esq",
			ParsedName{First: "John", Surname: surname("Smith"), Suffix: "Jr Esq"},
		},
		{
			"entity keeps original text only",
			"ABC Company LLC",
			ParsedName{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSegment(tt.segment, 3, DefaultClassifier)
			if got.SourceIndex != 3 {
				t.Errorf("SourceIndex = %d, want 3", got.SourceIndex)
			}
			if got.OriginalText != tt.segment {
				t.Errorf("OriginalText = %q, want %q", got.OriginalText, tt.segment)
			}
			if got.First != tt.want.First || got.Middle != tt.want.Middle || got.Suffix != tt.want.Suffix {
				t.Errorf("parsed %+v, want %+v", got, tt.want)
			}
			switch {
			case tt.want.Surname == nil:
				if got.Surname != nil {
					t.Errorf("Surname = %q, want nil", *got.Surname)
				}
			case got.Surname == nil:
				t.Errorf("Surname = nil, want %q", *tt.want.Surname)
			case *got.Surname != *tt.want.Surname:
				t.Errorf("Surname = %q, want %q", *got.Surname, *tt.want.Surname)
			}
		})
	}
}

func TestSplitSuffixes(t *testing.T) {
	words, suffixes := splitSuffixes(strings.Fields("Bob Smith Sr MD"))
	if strings.Join(words, " ") != "Bob Smith" {
		t.Errorf("words = %v, want [Bob Smith]", words)
	}
	if strings.Join(suffixes, " ") != "Sr MD" {
		t.Errorf("suffixes = %v, want [Sr MD]", suffixes)
	}

	// Casing is preserved; matching is case-insensitive.
	_, suffixes = splitSuffixes(strings.Fields("Jane Doe JR."))
	if len(suffixes) != 1 || suffixes[0] != "JR." {
		t.Errorf("suffixes = %v, want [JR.]", suffixes)
	}
}
