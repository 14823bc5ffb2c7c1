package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DisplayDateLayout is the date format shown on training emails.
const DisplayDateLayout = "January 2, 2006"

const genIDLayout = "20060102150405"

// Draft sources.
const (
	DraftSourceAI       = "ai"
	DraftSourceTemplate = "template"
)

// ErrEmptyBody is returned when a generated email has no content.
var ErrEmptyBody = errors.New("generated email has an empty body")

// MissingFieldError reports a required marker absent from generated text.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("generated email is missing the %s field", e.Field)
}

// EmailDraft is a generated or templated email before persistence.
type EmailDraft struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Content string `json:"content"`
	IsSpam  bool   `json:"is_spam"`
	Source  string `json:"-"`
}

// Valid reports whether the draft carries enough content to serve.
func (d EmailDraft) Valid() bool {
	return strings.TrimSpace(d.Sender) != "" && strings.TrimSpace(d.Subject) != "" && len(d.Content) > 20
}

type marker struct {
	name  string
	label string
}

var draftMarkers = []marker{
	{name: "sender", label: "Sender:"},
	{name: "subject", label: "Subject:"},
	{name: "date", label: "Date:"},
	{name: "content", label: "Content:"},
	{name: "is_spam", label: "Is_spam:"},
}

// EmailParser turns marker-delimited model output into drafts. Sanitize, when set, is applied
// to the body before paragraph wrapping and stamping.
type EmailParser struct {
	Sanitize func(string) string

	rng Randomizer
	now func() time.Time
}

// NewEmailParser builds a parser. A nil randomizer uses a runtime-seeded one.
func NewEmailParser(rng Randomizer) *EmailParser {
	if rng == nil {
		rng = NewRandomizer()
	}
	return &EmailParser{rng: rng, now: time.Now}
}

// splitMarkers returns the value following each marker that occurs, ending at the next marker that
// occurs later in the text.
func splitMarkers(raw string) map[string]string {
	type hit struct {
		name  string
		start int
		end   int
	}
	hits := make([]hit, 0, len(draftMarkers))
	searchFrom := 0
	for _, m := range draftMarkers {
		idx := strings.Index(raw[searchFrom:], m.label)
		if idx < 0 {
			continue
		}
		start := searchFrom + idx
		hits = append(hits, hit{name: m.name, start: start, end: start + len(m.label)})
		searchFrom = start + len(m.label)
	}

	values := make(map[string]string, len(hits))
	for i, h := range hits {
		stop := len(raw)
		if i+1 < len(hits) {
			stop = hits[i+1].start
		}
		values[h.name] = strings.TrimSpace(raw[h.end:stop])
	}
	return values
}

func firstLine(value string) string {
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

// Parse extracts the five draft fields from raw model text and applies the post-processing
// rules: paragraph wrapping, the gen_id marker and the sender domain mutation.
func (p *EmailParser) Parse(raw string) (EmailDraft, error) {
	values := splitMarkers(raw)

	sender, ok := values["sender"]
	if !ok || firstLine(sender) == "" {
		return EmailDraft{}, &MissingFieldError{Field: "Sender"}
	}
	subject, ok := values["subject"]
	if !ok || firstLine(subject) == "" {
		return EmailDraft{}, &MissingFieldError{Field: "Subject"}
	}

	now := p.now()
	draft := EmailDraft{
		Sender:  firstLine(sender),
		Subject: firstLine(subject),
		Date:    firstLine(values["date"]),
		Source:  DraftSourceAI,
	}
	if draft.Date == "" {
		draft.Date = now.Format(DisplayDateLayout)
	}

	content, hasContent := values["content"]
	if !hasContent {
		content = "<p>" + strings.TrimSpace(raw) + "</p>"
	}
	if p.Sanitize != nil {
		content = p.Sanitize(content)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return EmailDraft{}, ErrEmptyBody
	}

	if flag, ok := values["is_spam"]; ok {
		lower := strings.ToLower(flag)
		draft.IsSpam = strings.Contains(lower, "true") || strings.Contains(lower, "yes")
	} else {
		draft.IsSpam = p.rng.IntN(2) == 1
	}

	draft.Content = StampGenID(WrapParagraphs(content), now)
	draft.Sender = p.MutateSenderDomain(draft.Sender)
	return draft, nil
}

// WrapParagraphs wraps plain text in paragraphs, turning blank lines into paragraph breaks and
// single newlines into <br>. Content already starting with a tag is returned unchanged.
func WrapParagraphs(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<") {
		return trimmed
	}
	body := strings.ReplaceAll(trimmed, "\n\n", "</p><p>")
	body = strings.ReplaceAll(body, "\n", "<br>")
	return "<p>" + body + "</p>"
}

// StampGenID inserts the generation marker before </body>, or appends it.
func StampGenID(content string, at time.Time) string {
	stamp := fmt.Sprintf("<!-- gen_id: %s -->", at.Format(genIDLayout))
	if strings.Contains(content, "</body>") {
		return strings.Replace(content, "</body>", stamp+"</body>", 1)
	}
	return content + stamp
}

// MutateSenderDomain appends a random 1..999 to the first domain label with ~30% probability.
func (p *EmailParser) MutateSenderDomain(sender string) string {
	if p.rng.Float64() >= 0.3 {
		return sender
	}
	local, domain, ok := strings.Cut(sender, "@")
	if !ok || strings.Contains(domain, "@") {
		return sender
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return sender
	}
	labels[0] = fmt.Sprintf("%s%d", labels[0], between(p.rng, 1, 999))
	return local + "@" + strings.Join(labels, ".")
}

// ParseSenderSubject reads the two header markers of a structured-approach reply, falling back
// to neutral defaults.
func ParseSenderSubject(raw string) (sender, subject string) {
	sender = "training@example.com"
	subject = "Important Information"
	values := splitMarkers(raw)
	if v := firstLine(values["sender"]); v != "" {
		sender = v
	}
	if v := firstLine(values["subject"]); v != "" {
		subject = v
	}
	return sender, subject
}
