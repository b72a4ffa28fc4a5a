package model

// Language is a supported display language code.
type Language string

const (
	LangEnglish Language = "en"
	LangArabic  Language = "ar"
)

// LocalizedText holds a display string per supported language.
// English is the fallback when the requested language is empty.
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar,omitempty"`
}

// Resolve returns the text for the requested language, falling back to English.
func (t LocalizedText) Resolve(lang Language) string {
	if lang == LangArabic && t.AR != "" {
		return t.AR
	}
	return t.EN
}
