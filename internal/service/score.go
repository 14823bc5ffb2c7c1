package service

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	scaleNotePattern    = regexp.MustCompile(`\(\s*1\s*[-–]\s*10\s*\)`)
	sectionScorePattern = regexp.MustCompile(`(?im)(?:^|##\s*7\.[^\n]*?)(?:score|rating)[^0-9]*([1-9]|10)\b`)
	outOfTenPattern     = regexp.MustCompile(`(\d+)/10`)
)

// BaselineScore is the score used when none can be read from the evaluation.
func BaselineScore(correct bool) int {
	if correct {
		return 8
	}
	return 3
}

// ExtractScore reads a 1..10 score from raw evaluation text, trying a score/rating label, then
// an X/10 fraction, then the digits after "scale of 1-10".
func ExtractScore(text string, correct bool) int {
	stripped := scaleNotePattern.ReplaceAllString(text, "")
	if match := sectionScorePattern.FindStringSubmatch(stripped); match != nil {
		if score, ok := scoreInRange(match[1]); ok {
			return score
		}
	}

	for _, match := range outOfTenPattern.FindAllStringSubmatch(text, -1) {
		if score, ok := scoreInRange(match[1]); ok {
			return score
		}
		break
	}

	if _, rest, found := strings.Cut(text, "scale of 1-10"); found {
		line, _, _ := strings.Cut(rest, "\n")
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, line)
		if score, ok := scoreInRange(digits); ok {
			return score
		}
	}

	return BaselineScore(correct)
}

func scoreInRange(value string) (int, bool) {
	score, err := strconv.Atoi(value)
	if err != nil || score < 1 || score > 10 {
		return 0, false
	}
	return score, true
}
