package flags

import (
	"sort"
	"strings"
)

// Scorer rates the similarity of two strings on a 0-100 scale. The flag
// extractor only depends on this interface, so the matching algorithm is
// swappable.
type Scorer interface {
	Score(a, b string) float64
}

// TokenSetScorer scores strings by their word sets, tolerant of word order
// and of one string being a subset of the other: "sodium chloride 0.9%"
// still scores 100 against "sodium chloride". Individual token pairs are
// compared with Jaro-Winkler.
type TokenSetScorer struct{}

func (TokenSetScorer) Score(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	var inter, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	interStr := strings.Join(inter, " ")
	combinedA := strings.TrimSpace(interStr + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(interStr + " " + strings.Join(onlyB, " "))

	best := jaroWinkler(combinedA, combinedB)
	if interStr != "" {
		if s := jaroWinkler(interStr, combinedA); s > best {
			best = s
		}
		if s := jaroWinkler(interStr, combinedB); s > best {
			best = s
		}
	}
	return best * 100
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		alnum := r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		return !alnum
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

func jaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if s1 == "" || s2 == "" {
		return 0
	}

	matchDistance := max(len(s1), len(s2))/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	s1Matches := make([]bool, len(s1))
	s2Matches := make([]bool, len(s2))

	matches := 0
	transpositions := 0

	for i := range s1 {
		start := max(0, i-matchDistance)
		end := min(i+matchDistance+1, len(s2))
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	k := 0
	for i := range s1 {
		if !s1Matches[i] {
			continue
		}
		for ; !s2Matches[k]; k++ {
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	transpositions /= 2

	jaro := (float64(matches)/float64(len(s1)) + float64(matches)/float64(len(s2)) + float64(matches-transpositions)/float64(matches)) / 3

	prefix := 0
	for i := 0; i < min(4, min(len(s1), len(s2))); i++ {
		if s1[i] == s2[i] {
			prefix++
		} else {
			break
		}
	}

	return jaro + float64(prefix)*0.1*(1-jaro)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
