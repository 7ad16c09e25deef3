package session

import (
	"strings"
	"unicode/utf8"

	"github.com/chimera-dev/chimera/internal/config"
)

// minContentRunes is the minimal message length carrying enough signal
// to reclassify. Shorter messages keep the carried-over mode.
const minContentRunes = 2

// shortTextConfidence is the fixed neutral confidence reported when a
// message is too short to reclassify.
const shortTextConfidence = 0.5

// reinforcementStep is the additive confidence bonus per occurrence of
// the winning mode in the session history.
const reinforcementStep = 0.05

// Detector classifies message text into a conversational mode by scoring
// it against weighted lexical cue tables, reinforced by recent history.
type Detector struct {
	patterns   map[Mode][]Pattern
	threshold  float64
	normFactor float64
}

// NewDetector creates a detector. When cfg.PatternsFile is set, cue
// tables are loaded from it; otherwise the built-in tables are used.
func NewDetector(cfg config.ModeConfig) (*Detector, error) {
	patterns := DefaultPatterns()
	if cfg.PatternsFile != "" {
		loaded, err := LoadPatterns(cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
		patterns = loaded
	}
	return &Detector{
		patterns:   patterns,
		threshold:  cfg.ConfidenceThreshold,
		normFactor: cfg.NormalizationFactor,
	}, nil
}

// modePriority breaks score ties: creative outranks expert outranks talk.
var modePriority = []Mode{ModeCreative, ModeExpert, ModeTalk}

// Classify scores text against the cue tables and returns the chosen
// mode with a confidence in [0,1]. The session's history and current
// mode are updated as a side effect.
func (d *Detector) Classify(text string, s *UserSession) (Mode, float64) {
	// Too little signal to reclassify: keep the carried-over mode.
	if utf8.RuneCountInString(strings.TrimSpace(text)) <= minContentRunes {
		mode := s.CurrentMode
		if mode == ModeUnset {
			mode = ModeTalk
		}
		return mode, shortTextConfidence
	}

	scores := d.score(text)

	// Highest normalized score wins; ties resolve by fixed priority.
	winner, best := ModeTalk, 0.0
	for _, mode := range modePriority {
		if scores[mode] > best {
			winner, best = mode, scores[mode]
		}
	}

	confidence := best
	if best < d.threshold {
		// Not confident in any register: fall back to plain talk,
		// reporting the sub-threshold score as-is.
		winner = ModeTalk
	}

	if dominant, count := s.DominantMode(); dominant == winner && count > 0 {
		confidence += reinforcementStep * float64(count)
		if confidence > 1 {
			confidence = 1
		}
	}

	s.RecordMode(winner)
	return winner, confidence
}

// score computes the normalized score per mode: the sum of matched cue
// weights divided by the normalization factor, clamped to 1.
func (d *Detector) score(text string) map[Mode]float64 {
	lowered := strings.ToLower(text)

	scores := make(map[Mode]float64, len(d.patterns))
	for mode, patterns := range d.patterns {
		raw := 0.0
		for _, p := range patterns {
			if strings.Contains(lowered, strings.ToLower(p.Text)) {
				raw += p.Weight
			}
		}
		normalized := raw / d.normFactor
		if normalized > 1 {
			normalized = 1
		}
		scores[mode] = normalized
	}
	return scores
}
