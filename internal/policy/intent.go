// Package policy decides how each request mode queries the lexical index: the
// query text, top-k, score floor, and character budgets.
package policy

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a chat question.
type Intent string

// Chat intents.
const (
	IntentPlain    Intent = "plain"
	IntentFollowUp Intent = "follow_up"
	IntentSummary  Intent = "summary"
)

var (
	summaryPhrases = []string{
		"summarize", "summarise", "summary", "tl;dr", "tldr",
		"main takeaways", "key takeaways", "overview of the document", "overview of this",
		"gist of",
	}

	followUpPrefixes = []string{
		"elaborate", "expand", "explain more", "tell me more", "go on", "continue",
		"more detail", "more details", "and what about", "what about", "why is that", "why",
		"can you clarify", "clarify",
	}

	followUpPhrases = []string{
		"as you said", "you said", "you mentioned", "as mentioned", "mentioned above",
		"you just", "your answer", "your last", "the previous answer",
	}

	// Backward-referring pronouns and ordinals.
	followUpWords = regexp.MustCompile(`\b(that|it|its|those|them|they|these|former|latter|above|previous|earlier|first|second|third|fourth|fifth|last)\b`)
)

// Classify returns the intent of question. Follow-up detection only applies when
// there is prior conversation; summary requests are recognized regardless.
func Classify(question string, hasHistory bool) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return IntentPlain
	}
	for _, p := range summaryPhrases {
		if strings.Contains(q, p) {
			return IntentSummary
		}
	}
	if !hasHistory {
		return IntentPlain
	}
	for _, p := range followUpPrefixes {
		if strings.HasPrefix(q, p) {
			return IntentFollowUp
		}
	}
	for _, p := range followUpPhrases {
		if strings.Contains(q, p) {
			return IntentFollowUp
		}
	}
	if followUpWords.MatchString(q) {
		return IntentFollowUp
	}
	return IntentPlain
}
