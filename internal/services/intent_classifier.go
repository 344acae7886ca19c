package services

import (
	"strings"
	"sync/atomic"
	"unicode"

	"aitwin/internal/config"
	"aitwin/internal/models"
)

const codeFenceMarker = "```"

// IntentClassifier assigns an intent tag to a query by keyword matching.
// Single-word keywords match whole words; multi-word keywords match whole
// phrases. Coding wins over factual, factual over personal, anything else
// is casual. Keyword sets can be swapped at runtime with SetKeywords.
type IntentClassifier struct {
	sets atomic.Pointer[keywordSets]
}

type keywordSets struct {
	coding   keywordMatcher
	factual  keywordMatcher
	personal keywordMatcher
}

// keywordMatcher holds normalized keywords split by shape
type keywordMatcher struct {
	words   map[string]struct{}
	phrases []string // space padded
}

// NewIntentClassifier creates a classifier over the given keyword sets
func NewIntentClassifier(keywords config.IntentKeywords) *IntentClassifier {
	c := &IntentClassifier{}
	c.SetKeywords(keywords)
	return c
}

// SetKeywords replaces the keyword sets. Safe to call while Classify runs.
func (c *IntentClassifier) SetKeywords(keywords config.IntentKeywords) {
	c.sets.Store(&keywordSets{
		coding:   newKeywordMatcher(keywords.Coding),
		factual:  newKeywordMatcher(keywords.Factual),
		personal: newKeywordMatcher(keywords.Personal),
	})
}

// Classify returns the intent of a query. It never fails.
func (c *IntentClassifier) Classify(query string) models.Intent {
	sets := c.sets.Load()
	tokens := tokenize(query)
	padded := " " + strings.Join(tokens, " ") + " "

	if strings.Contains(query, codeFenceMarker) || sets.coding.matches(tokens, padded) {
		return models.IntentCoding
	}
	if sets.factual.matches(tokens, padded) {
		return models.IntentFactual
	}
	if sets.personal.matches(tokens, padded) {
		return models.IntentPersonal
	}
	return models.IntentCasual
}

func newKeywordMatcher(keywords []string) keywordMatcher {
	m := keywordMatcher{words: make(map[string]struct{})}
	for _, kw := range keywords {
		tokens := tokenize(kw)
		switch len(tokens) {
		case 0:
		case 1:
			m.words[tokens[0]] = struct{}{}
		default:
			m.phrases = append(m.phrases, " "+strings.Join(tokens, " ")+" ")
		}
	}
	return m
}

func (m keywordMatcher) matches(tokens []string, padded string) bool {
	for _, tok := range tokens {
		if _, ok := m.words[tok]; ok {
			return true
		}
	}
	for _, phrase := range m.phrases {
		if strings.Contains(padded, phrase) {
			return true
		}
	}
	return false
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
