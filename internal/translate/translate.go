// Package translate maps flag reactions onto translation target languages.
package translate

import "strings"

// reactionLanguage maps reaction names to the language the flagged message
// should be translated into. Both the short country aliases and the explicit
// flag- names are accepted.
var reactionLanguage = map[string]string{
	"kr":      "Korean",
	"flag-kr": "Korean",
	"us":      "English",
	"flag-us": "English",
	"jp":      "Japanese",
	"flag-jp": "Japanese",
}

// LanguageForReaction returns the target language for a reaction name, or
// ok=false when the reaction does not request a translation.
func LanguageForReaction(reaction string) (string, bool) {
	lang, ok := reactionLanguage[strings.TrimSpace(reaction)]
	return lang, ok
}
