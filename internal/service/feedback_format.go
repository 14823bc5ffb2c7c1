package service

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	numberedHeadingPatterns [7][3]*regexp.Regexp
	bulletStarPattern       = regexp.MustCompile(`(?m)^\*[ \t]*([^*\s])`)
	bulletDashPattern       = regexp.MustCompile(`(?m)^-[ \t]*([^-\s])`)
	boldPattern             = regexp.MustCompile(`\*\*[ \t]*([^*\n]+?)[ \t]*\*\*`)
	beforeHeadingPattern    = regexp.MustCompile(`([^\n])\n(##)`)
	afterHeadingPattern     = regexp.MustCompile(`(##[^\n]+)\n([^\n#])`)
)

var feedbackStyles = map[atom.Atom]string{
	atom.H3:         "color: #2a3f54; margin-top: 20px;",
	atom.Li:         "margin-bottom: 8px;",
	atom.Strong:     "color: #2a3f54;",
	atom.Blockquote: "border-left: 4px solid #ccc; padding-left: 15px; margin-left: 0; color: #555;",
	atom.Code:       "background-color: #f4f4f4; padding: 2px 4px; border-radius: 3px;",
}

func init() {
	for i := 1; i <= 7; i++ {
		numberedHeadingPatterns[i-1] = [3]*regexp.Regexp{
			regexp.MustCompile(fmt.Sprintf(`(?m)^%d\.[ \t]*(.+)$`, i)),
			regexp.MustCompile(fmt.Sprintf(`(?m)^%d\)[ \t]*(.+)$`, i)),
			regexp.MustCompile(fmt.Sprintf(`(?m)^#{1,5}[ \t]+%d\.[ \t]*(.+)$`, i)),
		}
	}
}

// FeedbackRenderer converts model Markdown into the styled HTML shown to trainees.
type FeedbackRenderer struct {
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// NewFeedbackRenderer builds a renderer with table, footnote and definition list support.
func NewFeedbackRenderer() *FeedbackRenderer {
	return &FeedbackRenderer{
		markdown: goldmark.New(goldmark.WithExtensions(
			extension.Table,
			extension.Footnote,
			extension.DefinitionList,
		)),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// NormalizeMarkdown repairs the heading, bullet and bold formatting models commonly get wrong.
func NormalizeMarkdown(text string) string {
	out := strings.TrimSpace(text)
	for i, patterns := range numberedHeadingPatterns {
		replacement := fmt.Sprintf("## %d. $1", i+1)
		for _, pattern := range patterns {
			out = pattern.ReplaceAllString(out, replacement)
		}
	}
	out = bulletStarPattern.ReplaceAllString(out, "* $1")
	out = bulletDashPattern.ReplaceAllString(out, "* $1")
	out = boldPattern.ReplaceAllString(out, "**$1**")
	out = beforeHeadingPattern.ReplaceAllString(out, "$1\n\n$2")
	out = afterHeadingPattern.ReplaceAllString(out, "$1\n\n$2")
	return out
}

// Render normalizes, converts, sanitizes and styles the Markdown.
func (r *FeedbackRenderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(NormalizeMarkdown(text)), &buf); err != nil {
		return "", fmt.Errorf("convert feedback markdown: %w", err)
	}
	clean := r.sanitizer.SanitizeBytes(buf.Bytes())
	return StyleFeedbackHTML(string(clean))
}

// StyleFeedbackHTML inlines the theme styles; h1 and h2 become h3.
func StyleFeedbackHTML(fragment string) (string, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return "", fmt.Errorf("parse feedback html: %w", err)
	}

	var out bytes.Buffer
	for _, node := range nodes {
		styleNode(node)
		if err := html.Render(&out, node); err != nil {
			return "", fmt.Errorf("render feedback html: %w", err)
		}
	}
	return out.String(), nil
}

func styleNode(n *html.Node) {
	if n.Type == html.ElementNode {
		if n.DataAtom == atom.H1 || n.DataAtom == atom.H2 {
			n.DataAtom = atom.H3
			n.Data = "h3"
		}
		if style, ok := feedbackStyles[n.DataAtom]; ok {
			setAttr(n, "style", style)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		styleNode(child)
	}
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// BaselineFeedback is the plain verdict shown when grading failed after reaching a provider.
func BaselineFeedback(correct bool) string {
	verdict := "Incorrect. Your verdict did not match this email's classification."
	if correct {
		verdict = "Correct. Your verdict matched this email's classification."
	}
	return fmt.Sprintf("<h3 style=\"%s\">Verdict</h3>\n<p>%s</p>\n<p>Detailed feedback is unavailable for this answer. Review the sender, links and tone of the email before your next attempt.</p>\n",
		feedbackStyles[atom.H3], verdict)
}

// EnsureHTML wraps plain-text feedback in a paragraph.
func EnsureHTML(feedback string) string {
	trimmed := strings.TrimSpace(feedback)
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return trimmed
	}
	return "<p>" + trimmed + "</p>"
}
