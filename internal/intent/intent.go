// Package intent classifies chat messages to decide which tools a turn
// should invoke.
package intent

import "strings"

// weatherVocabulary triggers the weather tool when any word appears in the
// message.
var weatherVocabulary = []string{
	"weather",
	"temperature",
	"forecast",
	"climate",
	"rain",
	"wind",
	"humidity",
	"hot",
	"cold",
}

// IsWeatherQuery reports whether the message asks about weather. Matching
// is a case-insensitive substring check over a fixed vocabulary.
func IsWeatherQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, word := range weatherVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
