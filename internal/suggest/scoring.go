package suggest

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"driftline/pkg/models"
)

const (
	recencyWindow = 14 * 24 * time.Hour
	recencyBonus  = 0.15
	lexicalWeight = 0.85
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "are": true, "was": true, "you": true,
	"your": true, "our": true, "how": true, "what": true, "why": true,
}

func tokenize(node models.ContentNode) map[string]bool {
	tokens := make(map[string]bool)
	add := func(text string) {
		var b strings.Builder
		flush := func() {
			if b.Len() >= 3 {
				word := b.String()
				if !stopwords[word] {
					tokens[word] = true
				}
			}
			b.Reset()
		}
		for _, r := range strings.ToLower(text) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			} else {
				flush()
			}
		}
		flush()
	}
	add(node.Title)
	add(node.Description)
	for _, tag := range node.Tags {
		add(tag)
	}
	return tokens
}

// lexicalScore is Jaccard similarity over normalized title/description/tag
// tokens, weighted so a perfect lexical match alone cannot reach 1.0, plus
// a bonus when both items were published inside the recency window.
func lexicalScore(source, candidate models.ContentNode) float64 {
	a := tokenize(source)
	b := tokenize(candidate)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var intersection int
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	score := lexicalWeight * float64(intersection) / float64(union)

	if !source.PublishedAt.IsZero() && !candidate.PublishedAt.IsZero() {
		gap := source.PublishedAt.Sub(candidate.PublishedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= recencyWindow {
			score += recencyBonus * (1 - float64(gap)/float64(recencyWindow))
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// heuristicType guesses a relationship type without the classifier: a
// lookalike on another platform reads as repurposed, newer content on the
// same platform as derivative, anything else as a reference.
func heuristicType(source, candidate models.ContentNode) models.RelationshipType {
	switch {
	case candidate.Platform != source.Platform:
		return models.RelationshipRepurposed
	case candidate.PublishedAt.After(source.PublishedAt):
		return models.RelationshipDerivative
	default:
		return models.RelationshipReference
	}
}

func heuristicRationale(score float64, source, candidate models.ContentNode) string {
	if candidate.Platform != source.Platform {
		return fmt.Sprintf("metadata similarity %.2f across %s and %s", score, source.Platform, candidate.Platform)
	}
	return fmt.Sprintf("metadata similarity %.2f on %s", score, source.Platform)
}
