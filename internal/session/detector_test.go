package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-dev/chimera/internal/config"
)

func testModeConfig() config.ModeConfig {
	return config.ModeConfig{
		HistorySize:         5,
		ConfidenceThreshold: 0.3,
		NormalizationFactor: 1.5,
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(testModeConfig())
	require.NoError(t, err)
	return d
}

func newSession(t *testing.T) *UserSession {
	t.Helper()
	s, err := NewUserSession("test_user", 5)
	require.NoError(t, err)
	return s
}

func TestClassifyExpertQuestions(t *testing.T) {
	d := newTestDetector(t)

	cases := []string{
		"Объясни, как работает нейронная сеть?",
		"Почему небо голубое?",
		"Расскажи про принцип работы двигателя",
		"Что такое квантовая механика?",
	}
	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			mode, confidence := d.Classify(text, newSession(t))
			assert.Equal(t, ModeExpert, mode)
			assert.Greater(t, confidence, 0.5)
		})
	}
}

func TestClassifyCreativeRequests(t *testing.T) {
	d := newTestDetector(t)

	cases := []string{
		"Придумай историю про дракона",
		"Сочини сказку для детей",
		"Представь, что ты космонавт",
		"Выдумай фантастический мир",
	}
	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			mode, confidence := d.Classify(text, newSession(t))
			assert.Equal(t, ModeCreative, mode)
			assert.Greater(t, confidence, 0.5)
		})
	}
}

func TestClassifyTalkByDefault(t *testing.T) {
	d := newTestDetector(t)

	cases := []string{
		"Привет, как дела?",
		"Мне сегодня грустно",
		"Какое у тебя настроение?",
		"Что-то скучно стало",
	}
	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			mode, _ := d.Classify(text, newSession(t))
			assert.Equal(t, ModeTalk, mode)
		})
	}
}

func TestClassifyShortTextKeepsCurrentMode(t *testing.T) {
	d := newTestDetector(t)
	s := newSession(t)
	s.CurrentMode = ModeExpert

	mode, confidence := d.Classify("Да", s)
	assert.Equal(t, ModeExpert, mode)
	assert.Equal(t, 0.5, confidence)

	mode, confidence = d.Classify("", s)
	assert.Equal(t, ModeExpert, mode)
	assert.Equal(t, 0.5, confidence)
}

func TestClassifyShortTextOnFreshSessionDefaultsToTalk(t *testing.T) {
	d := newTestDetector(t)

	mode, confidence := d.Classify("Да", newSession(t))
	assert.Equal(t, ModeTalk, mode)
	assert.Equal(t, 0.5, confidence)
}

func TestClassifyHistoryReinforcesConfidence(t *testing.T) {
	d := newTestDetector(t)
	s := newSession(t)
	s.ModeHistory = []Mode{ModeExpert, ModeExpert, ModeExpert}

	mode, confidence := d.Classify("Объясни квантовую физику", s)
	assert.Equal(t, ModeExpert, mode)
	assert.Greater(t, confidence, 0.7)
}

func TestClassifyMixedCues(t *testing.T) {
	d := newTestDetector(t)

	mode, confidence := d.Classify("Придумай научное объяснение почему драконы дышат огнем", newSession(t))
	assert.Contains(t, []Mode{ModeCreative, ModeExpert}, mode)
	assert.Greater(t, confidence, 0.5)
}

func TestClassifyUpdatesSessionState(t *testing.T) {
	d := newTestDetector(t)
	s := newSession(t)

	mode, _ := d.Classify("Почему небо голубое?", s)
	assert.Equal(t, ModeExpert, mode)
	assert.Equal(t, ModeExpert, s.CurrentMode)
	assert.Equal(t, []Mode{ModeExpert}, s.ModeHistory)
}

func TestClassifyHistoryStaysBounded(t *testing.T) {
	d := newTestDetector(t)
	s := newSession(t)

	texts := []string{
		"Почему небо голубое?",
		"Придумай историю про кота",
		"Привет, как дела?",
		"Что такое гравитация?",
		"Сочини сказку",
		"Мне грустно",
		"Объясни фотосинтез",
		"Выдумай планету",
	}
	for _, text := range texts {
		d.Classify(text, s)
		assert.LessOrEqual(t, len(s.ModeHistory), 5)
	}
}

func TestClassifyTieBreakPrefersCreative(t *testing.T) {
	cfg := testModeConfig()
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	// Both registers max out their normalized scores; the fixed priority
	// order resolves the tie in favor of creative.
	mode, confidence := d.Classify("Придумай и сочини: почему небо голубое и что такое звезды?", newSession(t))
	assert.Equal(t, ModeCreative, mode)
	assert.Greater(t, confidence, 0.5)
}

func TestClassifyBelowThresholdFallsBackToTalk(t *testing.T) {
	cfg := testModeConfig()
	cfg.ConfidenceThreshold = 0.9
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	// Expert cue scores 1.0/1.5 ≈ 0.67, below the raised threshold.
	mode, confidence := d.Classify("Почему небо голубое?", newSession(t))
	assert.Equal(t, ModeTalk, mode)
	assert.InDelta(t, 1.0/1.5, confidence, 1e-9)
}
