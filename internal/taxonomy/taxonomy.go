// Package taxonomy maps raw tutor-type labels to a canonical taxonomy,
// ported from shared/taxonomy/tutor_types.py. The alias table is embedded
// so the binary never depends on a runtime file path.
package taxonomy

import (
	_ "embed"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tutor_types.yaml
var taxonomyYAML []byte

type canonicalEntry struct {
	Display string   `yaml:"display"`
	Aliases []string `yaml:"aliases"`
}

type taxonomyFile struct {
	Canonical map[string]canonicalEntry `yaml:"canonical"`
}

var (
	loadOnce    sync.Once
	aliasesFlat map[string]string // lowercased alias/display -> canonical key
	aliasKeys   []string          // every alias/display key, in map order; not read by the scans
)

func ensureLoaded() {
	loadOnce.Do(func() {
		var tf taxonomyFile
		if err := yaml.Unmarshal(taxonomyYAML, &tf); err != nil {
			aliasesFlat = map[string]string{}
			return
		}
		aliasesFlat = make(map[string]string)
		for canon, info := range tf.Canonical {
			for _, a := range info.Aliases {
				aliasesFlat[strings.ToLower(a)] = canon
			}
			if info.Display != "" {
				aliasesFlat[strings.ToLower(info.Display)] = canon
			}
		}
		aliasKeys = make([]string, 0, len(aliasesFlat))
		for k := range aliasesFlat {
			aliasKeys = append(aliasKeys, k)
		}
	})
}

var tokenSplitRE = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeLabel maps a raw label to (canonical, original, confidence).
// Exact alias match scores 0.99, a tokenized alias match 0.9, a fuzzy
// match (edit-distance ratio >= 0.8) 0.75, a substring match 0.7;
// unmatched labels return ("unknown", original, 0.0). The fuzzy and
// substring steps range over a map, so when several aliases match equally
// well, which canonical is returned is not fixed.
func NormalizeLabel(label string) (canonical, original string, confidence float64) {
	orig := strings.TrimSpace(label)
	if orig == "" {
		return "unknown", "", 0
	}
	ensureLoaded()
	key := strings.ToLower(orig)

	if canon, ok := aliasesFlat[key]; ok {
		return canon, orig, 0.99
	}

	for _, tok := range tokenSplitRE.Split(key, -1) {
		if tok == "" {
			continue
		}
		if canon, ok := aliasesFlat[tok]; ok {
			return canon, orig, 0.9
		}
	}

	if canon, ratio := closestAlias(key); canon != "" && ratio >= 0.8 {
		return canon, orig, 0.75
	}

	for alias, canon := range aliasesFlat {
		if strings.Contains(alias, key) || strings.Contains(key, alias) {
			return canon, orig, 0.7
		}
	}

	return "unknown", orig, 0
}

// closestAlias finds the alias key with the highest similarity ratio to
// key, a hand-rolled stand-in for difflib.get_close_matches: no example
// repo imports a fuzzy-string-matching library, so this uses a plain
// Levenshtein-distance ratio instead of pulling in an unexercised
// dependency for one call site.
func closestAlias(key string) (string, float64) {
	var bestCanon string
	var bestRatio float64
	for alias, canon := range aliasesFlat {
		ratio := similarityRatio(key, alias)
		if ratio > bestRatio {
			bestRatio = ratio
			bestCanon = canon
		}
	}
	return bestCanon, bestRatio
}

// similarityRatio mirrors difflib's ratio: 2*matches / (len(a)+len(b))
// where matches is computed via Levenshtein edit distance as a stand-in
// for longest-matching-block accounting.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein(a, b)
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	matches := total - dist
	return float64(matches) / float64(total)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
