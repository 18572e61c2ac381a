package config

import "slices"

// ConfigDiff lists the hot-reloadable settings that differ between two
// configs. Settings outside this set need a restart and are not compared.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LanguagesChanged covers codes, display names and their order.
	LanguagesChanged bool

	DefaultLanguageChanged bool
	NewDefaultLanguage     string

	GlossaryChanged bool
}

// HasChanges reports whether anything needs applying.
func (d ConfigDiff) HasChanges() bool {
	return d != ConfigDiff{}
}

// Diff returns what a reload from old to new has to apply.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff
	if lvl := new.Server.LogLevel; lvl != old.Server.LogLevel {
		d.LogLevelChanged, d.NewLogLevel = true, lvl
	}
	if lang := new.Translation.DefaultLanguage; lang != old.Translation.DefaultLanguage {
		d.DefaultLanguageChanged, d.NewDefaultLanguage = true, lang
	}
	d.LanguagesChanged = !slices.Equal(old.Translation.Languages, new.Translation.Languages)
	d.GlossaryChanged = !slices.Equal(old.Recognition.Glossary, new.Recognition.Glossary)
	return d
}
