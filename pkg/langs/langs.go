// Package langs holds the static catalog of supported output languages and
// the translation directives appended to system prompts.
package langs

import (
	"fmt"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// DefaultID is the language used when the caller requests none.
const DefaultID = "en"

var languages = []models.Language{
	{ID: "en", Name: "English", NativeName: "English"},
	{ID: "es", Name: "Spanish", NativeName: "Español"},
	{ID: "fr", Name: "French", NativeName: "Français"},
	{ID: "de", Name: "German", NativeName: "Deutsch"},
	{ID: "it", Name: "Italian", NativeName: "Italiano"},
	{ID: "pt", Name: "Portuguese", NativeName: "Português"},
	{ID: "ru", Name: "Russian", NativeName: "Русский"},
	{ID: "zh-TW", Name: "Traditional Chinese", NativeName: "正體中文"},
	{ID: "zh-CN", Name: "Simplified Chinese", NativeName: "简体中文"},
	{ID: "ja", Name: "Japanese", NativeName: "日本語"},
	{ID: "ko", Name: "Korean", NativeName: "한국어"},
	{ID: "ar", Name: "Arabic", NativeName: "العربية"},
	{ID: "hi", Name: "Hindi", NativeName: "हिन्दी"},
}

var byID = func() map[string]models.Language {
	m := make(map[string]models.Language, len(languages))
	for _, l := range languages {
		m[l.ID] = l
	}
	return m
}()

// All returns the full language catalog.
func All() []models.Language {
	out := make([]models.Language, len(languages))
	copy(out, languages)
	return out
}

// ByID returns the language with the given id, falling back to English for
// unknown ids.
func ByID(id string) models.Language {
	if l, ok := byID[id]; ok {
		return l
	}
	return languages[0]
}

// TranslationDirective returns the instruction block appended to the system
// prompt when a non-default language is requested. It is empty for the
// default language.
func TranslationDirective(languageID string) string {
	if languageID == DefaultID {
		return ""
	}

	l := ByID(languageID)

	return fmt.Sprintf(`
Regardless of the instructions above, you MUST format your responses as follows:

1. First, provide your answer in English, enclosed in markdown blockquote format (> Your English response here)
2. Then, provide the translated version in %s (%s) as regular text.

You MUST use this exact format for every response:

> [English original answer here]

[%s translation here]

Do not include any additional explanations or notes about the translation process.
If you're unsure about any specialized terms, use the most appropriate translation for the context.
`, l.Name, l.NativeName, l.Name)
}
