package domain

import (
	"regexp"
	"strings"
)

var (
	specialChars = regexp.MustCompile(`[^\w\s]+`)

	// bracket pool prefixes such as "1 1 slox" or "p1s1 slox"
	poolPrefix      = regexp.MustCompile(`([1-9]+.[1-9]+.)(.+)`)
	lettered        = regexp.MustCompile(`(.[1-9]+.[1-9]+.)(.+)`)
	poolPrefixRules = []*regexp.Regexp{poolPrefix, lettered}
)

// NormalizeAlias is the canonical stored form of an alias.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// SimilarAliases expands a scraped alias into the stored aliases it may correspond to.
// The first element is always the normalized alias itself.
func SimilarAliases(alias string) []string {
	lower := NormalizeAlias(alias)

	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(lower)
	add(strings.ReplaceAll(lower, " ", ""))
	add(specialChars.ReplaceAllString(lower, ""))

	// drop everything up to the last special character, usually a crew or sponsor tag
	parts := specialChars.Split(lower, -1)
	add(strings.TrimSpace(parts[len(parts)-1]))

	for _, re := range poolPrefixRules {
		if m := re.FindStringSubmatch(lower); m != nil {
			add(m[2])
			add(strings.TrimSpace(m[2]))
		}
	}

	words := strings.Fields(lower)
	for i := range words {
		add(strings.Join(words[i:], " "))
	}

	return out
}
