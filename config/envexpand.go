package config

import (
	"os"
	"regexp"
)

// refPattern matches ${VAR} and ${VAR:-default} references.
var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references with their
// environment values. Only braced references expand, so literal dollar
// signs in locators and amounts survive.
//
// A variable that is unset, or set but empty, falls back to the default;
// without a default it becomes the empty string. A missing required value
// then fails at downstream validation rather than here.
func ExpandEnv(input string) string {
	return refPattern.ReplaceAllStringFunc(input, func(ref string) string {
		groups := refPattern.FindStringSubmatch(ref)
		name, fallback := groups[1], groups[2]
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		return fallback
	})
}
