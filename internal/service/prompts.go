package service

import "fmt"

func standardPrompt(userName, summary, today string) string {
	return fmt.Sprintf(`
You are a cybersecurity training email generator. Create ONE realistic email for a phishing simulation tailored to the user's performance.

User name: %s
Performance summary: %s

Output strictly in EXACTLY the following format (no extra commentary, no code fences):

Sender: <single email address>
Subject: <concise subject>
Date: %s
Content:
<html><body>
<!-- Provide the email body as HTML paragraphs and links; no external CSS -->
</body></html>
Is_spam: <true|false>

Guidelines:
- If phishing (Is_spam: true): include subtle but identifiable red flags (lookalike domains, mismatched link text vs href, urgency, credential/payment requests).
- If legitimate (Is_spam: false): realistic tone with legitimate cues; avoid phishing indicators (no lookalike domains, no urgent threats, no requests for credentials).
- Vary topics; do not reuse predefined examples; avoid the words "phishing" or "simulation".
- All links must be plausible; for phishing, use lookalike domains; for legitimate, use real domains.
- Do NOT include any fields other than Sender, Subject, Date, Content, Is_spam in that exact order.
`, userName, summary, today)
}

func neutralPrompt(today string) string {
	return fmt.Sprintf(`
Create an email sample for educational purposes. Format:

Sender: (email address)
Subject: (brief subject line)
Date: %s
Content:
<html><body>
<p>Email content here</p>
</body></html>
Is_spam: true or false

Make the email either legitimate (Is_spam: false) or suspicious (Is_spam: true).
If suspicious, include subtle issues like slightly misspelled domains or links that don't match display text.
If legitimate, use proper formatting and realistic business content.
`, today)
}

const structuredHeaderPrompt = `
Generate ONLY a subject line and sender for an email. No other text.
Format exactly as:
Sender: name@example.com
Subject: Subject line here

Make it %s.
`

const structuredBodyPrompt = `
Write a short email body in HTML format. The email should be %s.
Include only the HTML content, nothing else.
`

func verdictWord(isSpam bool) string {
	if isSpam {
		return "IS"
	}
	return "IS NOT"
}

func evaluationPrompt(emailContent string, isSpam, userResponse bool, explanation string) string {
	return fmt.Sprintf(`
You are a rigorous security trainer. Evaluate the user's analysis of a potential phishing email. Be firm, specific, and constructive. Do not invent details not present in the email.

EMAIL (verbatim HTML/text):
%s

Ground truth:
This %s a phishing/spam email.

User's verdict:
The user said this %s a phishing/spam email.

User's explanation (verbatim):
%s

Write feedback in Markdown with these exact sections and headings:

## 1. Verdict
State whether the user's verdict is Correct or Incorrect, and a one-sentence reason anchored to the email content.

## 2. What we expected to see
List the key signals a strong analysis should mention for this email. Include at least 3 specific indicators (sender/domain, URLs, urgency, grammar, requests for credentials, mismatch of display vs actual link, DKIM/DMARC cues if visible, etc.). For each, add a short why-it-matters.

## 3. What you did well
Bullet points, citing any correct observations from the user's explanation.

## 4. Where you went wrong
Bullet points, each describing one miss or mistake. For each item:
- What the user said (quote or paraphrase briefly)
- What the evidence in the email shows instead
- Why this matters

## 5. Evidence from the email
Quote or paraphrase 2-4 exact snippets from the email that support the correct verdict. Use blockquotes or inline code.

## 6. How to improve next time
3 concrete, actionable tips tailored to this case.

## 7. Score (1-10)
Give a score with a one-line justification referencing the bullets above.

Rules:
- Be concise but specific. Prefer bullet points over paragraphs.
- Never claim facts outside the email. If information is missing, say so.
- If the user got the verdict right but reasoning was weak, say that explicitly.
`, emailContent, verdictWord(isSpam), verdictWord(userResponse), explanation)
}
