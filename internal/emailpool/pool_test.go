package emailpool

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPoolLoads(t *testing.T) {
	pool, err := Default()
	require.NoError(t, err)
	require.Len(t, pool.Predefined, 5)
	require.Len(t, pool.Templates, 8)
	require.NotEmpty(t, pool.Phrases)

	first, ok := pool.PredefinedByID(1)
	require.True(t, ok)
	require.Equal(t, "security@paypa1.com", first.Sender)
	require.True(t, first.IsSpam)

	third, ok := pool.PredefinedByID(3)
	require.True(t, ok)
	require.False(t, third.IsSpam)

	_, ok = pool.PredefinedByID(6)
	require.False(t, ok)
	_, ok = pool.PredefinedByID(0)
	require.False(t, ok)
}

func TestParseRejectsInvalidPool(t *testing.T) {
	_, err := Parse([]byte("predefined: []\ntemplates: []\nphrases: []\nfeedback: []\n"))
	require.Error(t, err)

	_, err = Parse([]byte("not: [valid"))
	require.Error(t, err)
}

func TestFeedbackRenderIncludesScore(t *testing.T) {
	pool := MustDefault()

	correct := pool.FeedbackFor(true)
	require.Len(t, correct, 2)
	incorrect := pool.FeedbackFor(false)
	require.Len(t, incorrect, 2)

	html := correct[0].Render(8)
	require.Contains(t, html, "8/10")
	require.Contains(t, html, "<h3 style='color: #2a3f54; margin-top: 20px;'>1. Verdict</h3>")
	require.Contains(t, html, "5. Score")
	require.NotContains(t, html, "{score}")
	require.Equal(t, 5, strings.Count(html, "<h3"))
}
