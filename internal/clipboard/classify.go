package clipboard

import (
	"regexp"
	"strings"

	"clipit/pkg/types"
)

var (
	colorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^#([0-9A-Fa-f]{3}){1,2}$`),
		regexp.MustCompile(`^#([0-9A-Fa-f]{4}){1,2}$`),
		regexp.MustCompile(`^rgb\(\d{1,3},\d{1,3},\d{1,3}\)$`),
		regexp.MustCompile(`^rgba\(\d{1,3},\d{1,3},\d{1,3},\d?\.?\d+\)$`),
		regexp.MustCompile(`^hsl\(\d{1,3},\d{1,3}%,\d{1,3}%\)$`),
		regexp.MustCompile(`^hsla\(\d{1,3},\d{1,3}%,\d{1,3}%,\d?\.?\d+\)$`),
	}
	mailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlPrefixes = []string{"http://", "https://", "mailto://"}
)

// Classify decides the kind of copied text and returns the value to store.
// ok is false when nothing is left after trimming.
func Classify(text string) (kind types.Kind, value string, ok bool) {
	text = strings.TrimRight(text, "\n\r ")
	if text == "" {
		return "", "", false
	}

	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(text, prefix) {
			return types.KindURL, text, true
		}
	}

	compact := strings.ReplaceAll(strings.Trim(text, " \n\r"), " ", "")
	if isColor(text) || isColor(compact) {
		return types.KindColor, compact, true
	}

	if mailPattern.MatchString(text) {
		return types.KindMail, text, true
	}
	return types.KindText, text, true
}

func isColor(s string) bool {
	for _, re := range colorPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
