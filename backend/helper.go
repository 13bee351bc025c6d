package main

import (
	"fmt"
	"strings"
)

// Research areas that count as related when two tags differ.
var semanticGroups = map[string][]string{
	"ml":       {"ml", "machine learning", "deep learning", "neural", "llm", "nlp", "ai"},
	"vision":   {"vision", "image", "video", "graphics", "3d"},
	"systems":  {"systems", "distributed", "os", "database", "network", "cloud"},
	"security": {"security", "crypto", "privacy", "formal"},
	"bio":      {"bio", "genomics", "protein", "neuro", "medical"},
	"hci":      {"hci", "interaction", "design", "ux", "visualization"},
	"physics":  {"physics", "quantum", "astro", "materials"},
	"theory":   {"theory", "algorithms", "math", "optimization", "logic"},
}

// calculateInterestScore weighs exact tag matches over related ones.
func calculateInterestScore(userTags, candidateTags []string) int {
	if len(userTags) == 0 || len(candidateTags) == 0 {
		return 0
	}

	userSet := make(map[string]bool)
	for _, t := range userTags {
		userSet[strings.ToLower(t)] = true
	}

	exactMatches := 0
	partialMatches := 0

	for _, t := range candidateTags {
		if userSet[strings.ToLower(t)] {
			exactMatches++
		}
	}

	for _, userTag := range userTags {
		userLower := strings.ToLower(userTag)
		for _, candidateTag := range candidateTags {
			candidateLower := strings.ToLower(candidateTag)
			if userLower == candidateLower {
				continue
			}
			if sameGroup(userLower, candidateLower) {
				partialMatches++
			}
		}
	}

	score := exactMatches*3 + partialMatches

	// Bonus for high overlap percentage
	total := len(userTags) + len(candidateTags)
	if float64(exactMatches*2)/float64(total) > 0.5 {
		score += 5
	}
	return score
}

func sameGroup(a, b string) bool {
	for _, group := range semanticGroups {
		aIn, bIn := false, false
		for _, word := range group {
			if strings.Contains(a, word) {
				aIn = true
			}
			if strings.Contains(b, word) {
				bIn = true
			}
		}
		if aIn && bIn {
			return true
		}
	}
	return false
}

// matchScore maps the interest score onto 10..100. One shared tag is worth 20.
func matchScore(userTags, candidateTags []string) int {
	score := calculateInterestScore(userTags, candidateTags) * 20 / 3
	return min(100, max(10, score))
}

// commonTags lists the candidate tags the user also has, in candidate order.
func commonTags(userTags, candidateTags []string) []string {
	userSet := make(map[string]bool, len(userTags))
	for _, t := range userTags {
		userSet[strings.ToLower(t)] = true
	}
	var out []string
	for _, t := range candidateTags {
		if userSet[strings.ToLower(t)] {
			out = append(out, t)
		}
	}
	return out
}

// matchComment is the short blurb shown under the partner card.
func matchComment(common []string) string {
	switch len(common) {
	case 0:
		return "Different corners of research. A good chance to learn something new."
	case 1:
		return fmt.Sprintf("You both care about #%s.", common[0])
	default:
		tags := make([]string, len(common))
		for i, t := range common {
			tags[i] = "#" + t
		}
		return fmt.Sprintf("You share %d interests: %s.", len(common), strings.Join(tags, " "))
	}
}
