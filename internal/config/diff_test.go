package config_test

import (
	"testing"

	"github.com/MrWong99/lingualive/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Recognition: config.RecognitionConfig{
			Glossary: []string{"Kubernetes"},
		},
		Translation: config.TranslationConfig{
			DefaultLanguage: "fr",
			Languages: []config.Language{
				{Code: "fr", Name: "French"},
				{Code: "de", Name: "German"},
			},
		},
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   config.ConfigDiff
	}{
		{
			name:   "no changes",
			mutate: func(*config.Config) {},
			want:   config.ConfigDiff{},
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			want:   config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug},
		},
		{
			name: "language added",
			mutate: func(c *config.Config) {
				c.Translation.Languages = append(c.Translation.Languages, config.Language{Code: "es", Name: "Spanish"})
			},
			want: config.ConfigDiff{LanguagesChanged: true},
		},
		{
			name:   "language renamed",
			mutate: func(c *config.Config) { c.Translation.Languages[1].Name = "Deutsch" },
			want:   config.ConfigDiff{LanguagesChanged: true},
		},
		{
			name:   "default language",
			mutate: func(c *config.Config) { c.Translation.DefaultLanguage = "de" },
			want:   config.ConfigDiff{DefaultLanguageChanged: true, NewDefaultLanguage: "de"},
		},
		{
			name:   "glossary",
			mutate: func(c *config.Config) { c.Recognition.Glossary = []string{"Kubernetes", "Zorrath"} },
			want:   config.ConfigDiff{GlossaryChanged: true},
		},
		{
			name: "restart-only fields are ignored",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":9999"
				c.Audio.SampleRate = 48000
				c.Translation.Provider.Name = "openai"
			},
			want: config.ConfigDiff{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tt.mutate(updated)

			got := config.Diff(old, updated)
			if got != tt.want {
				t.Errorf("Diff() = %+v, want %+v", got, tt.want)
			}
			if got.HasChanges() != (tt.want != config.ConfigDiff{}) {
				t.Errorf("HasChanges() = %v", got.HasChanges())
			}
		})
	}
}
