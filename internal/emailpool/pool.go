// Package emailpool holds the static training content: the predefined phase-1 emails, the
// template emails served when generation is unavailable and the canned grading feedback.
package emailpool

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed pool.yaml
var poolYAML []byte

//go:embed pool.schema.json
var poolSchema []byte

const schemaURL = "mem://emailpool/pool.schema.json"

// Email is one static email body.
type Email struct {
	ID      uint   `yaml:"id"`
	Sender  string `yaml:"sender"`
	Subject string `yaml:"subject"`
	Date    string `yaml:"date"`
	Content string `yaml:"content"`
	IsSpam  bool   `yaml:"is_spam"`
}

// Section is one heading of a canned feedback body.
type Section struct {
	Heading string   `yaml:"heading"`
	Intro   string   `yaml:"intro"`
	Items   []string `yaml:"items"`
}

// Feedback is a canned evaluation used when grading cannot reach a provider.
type Feedback struct {
	Correct   bool      `yaml:"correct"`
	Sections  []Section `yaml:"sections"`
	ScoreLine string    `yaml:"score_line"`
}

// Pool is the parsed content set.
type Pool struct {
	Predefined []Email    `yaml:"predefined"`
	Templates  []Email    `yaml:"templates"`
	Phrases    []string   `yaml:"phrases"`
	Feedback   []Feedback `yaml:"feedback"`
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
	defaultErr  error
)

// Default returns the embedded pool, parsed and validated once per process.
func Default() (*Pool, error) {
	defaultOnce.Do(func() {
		defaultPool, defaultErr = Parse(poolYAML)
	})
	return defaultPool, defaultErr
}

// MustDefault is Default for callers that treat a broken embedded pool as fatal.
func MustDefault() *Pool {
	pool, err := Default()
	if err != nil {
		panic(err)
	}
	return pool
}

// Parse validates raw YAML against the pool schema and decodes it.
func Parse(raw []byte) (*Pool, error) {
	var document interface{}
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode email pool: %w", err)
	}

	// Round-trip through JSON so the validator sees json.Number instead of yaml ints.
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encode email pool: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var instance interface{}
	if err := decoder.Decode(&instance); err != nil {
		return nil, fmt.Errorf("encode email pool: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate email pool: %w", err)
	}

	var pool Pool
	if err := yaml.Unmarshal(raw, &pool); err != nil {
		return nil, fmt.Errorf("decode email pool: %w", err)
	}
	if err := pool.check(); err != nil {
		return nil, err
	}
	return &pool, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(poolSchema)); err != nil {
		return nil, fmt.Errorf("load email pool schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile email pool schema: %w", err)
	}
	return schema, nil
}

// check enforces rules the schema cannot express.
func (p *Pool) check() error {
	for i, email := range p.Predefined {
		if email.ID != uint(i+1) {
			return fmt.Errorf("predefined email %d has id %d", i+1, email.ID)
		}
	}

	var hasCorrect, hasIncorrect bool
	for _, feedback := range p.Feedback {
		if feedback.Correct {
			hasCorrect = true
		} else {
			hasIncorrect = true
		}
	}
	if !hasCorrect || !hasIncorrect {
		return errors.New("email pool needs feedback for both correct and incorrect verdicts")
	}
	return nil
}

// PredefinedByID returns the predefined email with the given id.
func (p *Pool) PredefinedByID(id uint) (Email, bool) {
	if id == 0 || int(id) > len(p.Predefined) {
		return Email{}, false
	}
	return p.Predefined[id-1], true
}

// FeedbackFor returns the canned feedback entries for a correct or incorrect verdict.
func (p *Pool) FeedbackFor(correct bool) []Feedback {
	out := make([]Feedback, 0, len(p.Feedback))
	for _, feedback := range p.Feedback {
		if feedback.Correct == correct {
			out = append(out, feedback)
		}
	}
	return out
}

// Render produces the styled HTML body for a canned feedback entry with the given score. The
// score line is appended as the final numbered section.
func (f Feedback) Render(score int) string {
	var b strings.Builder
	for i, section := range f.Sections {
		writeHeading(&b, i+1, section.Heading)
		if section.Intro != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", section.Intro)
		}
		if len(section.Items) > 0 {
			b.WriteString("<ul>\n")
			for _, item := range section.Items {
				fmt.Fprintf(&b, "<li style='margin-bottom: 8px;'>%s</li>\n", item)
			}
			b.WriteString("</ul>\n")
		}
	}
	writeHeading(&b, len(f.Sections)+1, "Score")
	fmt.Fprintf(&b, "<p>%s</p>\n", strings.ReplaceAll(f.ScoreLine, "{score}", fmt.Sprintf("%d", score)))
	return b.String()
}

func writeHeading(b *strings.Builder, n int, heading string) {
	fmt.Fprintf(b, "<h3 style='color: #2a3f54; margin-top: 20px;'>%d. %s</h3>\n", n, heading)
}
