package service

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/emailpool"
)

func TestTemplateSourceDraftIsUnique(t *testing.T) {
	source := NewTemplateSource(emailpool.MustDefault(), NewSeededRandomizer(7))
	source.now = func() time.Time { return time.Date(2025, 8, 14, 10, 11, 12, 0, time.UTC) }

	subjectPattern := regexp.MustCompile(`^[^:]+: .+ #\d{5}$`)
	for i := 0; i < 50; i++ {
		draft := source.Draft()
		require.Equal(t, DraftSourceTemplate, draft.Source)
		require.Regexp(t, subjectPattern, draft.Subject)
		require.Contains(t, draft.Content, "-10:11:12)</p>")
		require.Equal(t, "August 14, 2025", draft.Date)
		require.Contains(t, draft.Sender, "@")
		require.True(t, draft.Valid())
	}
}

func TestTemplateSourceFeedbackRanges(t *testing.T) {
	source := NewTemplateSource(emailpool.MustDefault(), NewSeededRandomizer(11))

	for i := 0; i < 100; i++ {
		html, score := source.Feedback(true)
		require.GreaterOrEqual(t, score, 7)
		require.LessOrEqual(t, score, 9)
		require.True(t, strings.Contains(html, "/10"))

		_, score = source.Feedback(false)
		require.GreaterOrEqual(t, score, 2)
		require.LessOrEqual(t, score, 4)
	}
}
