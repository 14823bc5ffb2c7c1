package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashuthecoder/cybervantage-api/internal/emailpool"
)

var domainSeparators = []string{"", "-", "."}

// TemplateSource serves pool emails with per-call variation so repeated fallbacks within a run
// stay distinguishable.
type TemplateSource struct {
	pool *emailpool.Pool
	rng  Randomizer
	now  func() time.Time
}

// NewTemplateSource builds a template source over the pool.
func NewTemplateSource(pool *emailpool.Pool, rng Randomizer) *TemplateSource {
	if rng == nil {
		rng = NewRandomizer()
	}
	return &TemplateSource{pool: pool, rng: rng, now: time.Now}
}

// Draft returns a randomly chosen template with a prefixed subject, a reference id appended to
// the first paragraph and an occasional sender domain variation.
func (s *TemplateSource) Draft() EmailDraft {
	template := pick(s.rng, s.pool.Templates)
	phrase := pick(s.rng, s.pool.Phrases)
	refID := between(s.rng, 10000, 99999)
	now := s.now()

	content := strings.TrimSpace(template.Content)
	content = strings.Replace(content, "</p>", fmt.Sprintf(" (Ref: %d-%s)</p>", refID, now.Format("15:04:05")), 1)

	return EmailDraft{
		Sender:  s.varySender(template.Sender),
		Subject: fmt.Sprintf("%s: %s #%d", phrase, template.Subject, refID),
		Date:    now.Format(DisplayDateLayout),
		Content: content,
		IsSpam:  template.IsSpam,
		Source:  DraftSourceTemplate,
	}
}

func (s *TemplateSource) varySender(sender string) string {
	local, domain, ok := strings.Cut(sender, "@")
	if !ok {
		return sender
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 || s.rng.Float64() >= 0.3 {
		return sender
	}
	labels[0] = fmt.Sprintf("%s%s%d", labels[0], pick(s.rng, domainSeparators), between(s.rng, 1, 99))
	return local + "@" + strings.Join(labels, ".")
}

// Feedback returns a canned evaluation with a score in [7,9] for a correct verdict or [2,4]
// otherwise.
func (s *TemplateSource) Feedback(correct bool) (string, int) {
	score := between(s.rng, 2, 4)
	if correct {
		score = between(s.rng, 7, 9)
	}
	choices := s.pool.FeedbackFor(correct)
	return pick(s.rng, choices).Render(score), score
}
