package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pattern is a weighted lexical cue. Patterns are configuration data,
// kept apart from the scoring algorithm so they can be tuned without
// touching it.
type Pattern struct {
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
}

// DefaultPatterns returns the built-in cue tables for each mode.
// Matching is case-insensitive substring search, so stems are used where
// Russian inflection varies ("сказк" covers "сказка", "сказку", ...).
func DefaultPatterns() map[Mode][]Pattern {
	return map[Mode][]Pattern{
		ModeExpert: {
			{Text: "почему", Weight: 1.0},
			{Text: "зачем", Weight: 1.0},
			{Text: "что такое", Weight: 1.0},
			{Text: "объясни", Weight: 1.0},
			{Text: "расскажи про", Weight: 1.0},
			{Text: "расскажи о", Weight: 1.0},
			{Text: "как работает", Weight: 1.0},
			{Text: "как устроен", Weight: 1.0},
			{Text: "в чем разница", Weight: 1.0},
			{Text: "принцип", Weight: 0.6},
			{Text: "научн", Weight: 0.6},
			{Text: "теори", Weight: 0.6},
			{Text: "физик", Weight: 0.5},
			{Text: "механизм", Weight: 0.5},
		},
		ModeCreative: {
			{Text: "придумай", Weight: 1.2},
			{Text: "сочини", Weight: 1.2},
			{Text: "выдумай", Weight: 1.2},
			{Text: "представь", Weight: 1.0},
			{Text: "вообрази", Weight: 1.0},
			{Text: "напиши стих", Weight: 1.2},
			{Text: "сказк", Weight: 0.8},
			{Text: "фантаст", Weight: 0.8},
			{Text: "истори", Weight: 0.7},
			{Text: "творческ", Weight: 0.8},
		},
		ModeTalk: {
			{Text: "привет", Weight: 0.8},
			{Text: "как дела", Weight: 0.8},
			{Text: "как ты", Weight: 0.6},
			{Text: "настроени", Weight: 0.8},
			{Text: "грустно", Weight: 0.8},
			{Text: "скучно", Weight: 0.8},
			{Text: "весело", Weight: 0.6},
			{Text: "спасибо", Weight: 0.6},
			{Text: "доброе утро", Weight: 0.8},
			{Text: "добрый день", Weight: 0.8},
			{Text: "добрый вечер", Weight: 0.8},
		},
	}
}

// LoadPatterns reads cue tables from a YAML file keyed by mode name.
func LoadPatterns(path string) (map[Mode][]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}

	var raw map[string][]Pattern
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file: %w", err)
	}

	patterns := make(map[Mode][]Pattern, len(raw))
	for name, ps := range raw {
		mode := Mode(name)
		switch mode {
		case ModeExpert, ModeCreative, ModeTalk:
			patterns[mode] = ps
		default:
			return nil, fmt.Errorf("unknown mode %q in patterns file", name)
		}
	}
	return patterns, nil
}
