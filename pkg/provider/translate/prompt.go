package translate

import "fmt"

// languageNames maps the codes offered to clients to English names, which
// LLM backends follow more reliably than bare codes.
var languageNames = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"zh": "Chinese",
}

// LanguageName returns the English name for code, or code itself when unknown.
func LanguageName(code string) string {
	if n, ok := languageNames[code]; ok {
		return n
	}
	return code
}

// SystemPrompt returns the instruction used by LLM-backed translators.
func SystemPrompt(targetLang string) string {
	return fmt.Sprintf(
		"You are a translation engine. Translate the user's message into %s (%s). "+
			"Reply with the translation only, without quotes, notes or explanations. "+
			"If the message is already in %s, repeat it unchanged.",
		LanguageName(targetLang), targetLang, LanguageName(targetLang))
}
