// Package i18n holds the user-facing message catalogues. Thai is the default
// language; English is the only other catalogue shipped.
package i18n

import (
	"embed"
	"fmt"
	"slices"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/triage-ai/lark-agent/internal/engine"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var catalogues = []string{
	"locales/active.th.yaml",
	"locales/active.en.yaml",
}

var (
	supported = []language.Tag{language.Thai, language.English}
	matcher   = language.NewMatcher(supported)
)

// MatchLocale maps a LOCALE value to a shipped catalogue, Thai when nothing
// matches.
func MatchLocale(locale string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.Thai
	}
	_, i, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.Thai
	}
	return supported[i]
}

// Bundle wraps the loaded catalogues.
type Bundle struct {
	bundle *i18n.Bundle
}

// NewBundle loads the embedded catalogues.
func NewBundle() (*Bundle, error) {
	b := i18n.NewBundle(language.Thai)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)
	for _, path := range catalogues {
		if _, err := b.LoadMessageFileFS(localeFS, path); err != nil {
			return nil, fmt.Errorf("NewBundle: %s: %w", path, err)
		}
	}
	return &Bundle{bundle: b}, nil
}

// TranslateFunc renders message id with optional template data. A missing id
// renders as the id itself.
type TranslateFunc func(id string, data ...map[string]any) string

// LocalizerFunc returns a TranslateFunc for locale, falling back to Thai.
func LocalizerFunc(b *Bundle, locale string) TranslateFunc {
	loc := i18n.NewLocalizer(b.bundle, MatchLocale(locale).String())
	return func(id string, data ...map[string]any) string {
		cfg := &i18n.LocalizeConfig{MessageID: id}
		if len(data) > 0 {
			cfg.TemplateData = data[0]
		}
		msg, err := loc.Localize(cfg)
		if err != nil || msg == "" {
			return id
		}
		return msg
	}
}

// SanitizerConfig returns the response sanitizer strings for locale.
func SanitizerConfig(b *Bundle, locale string) engine.SanitizerConfig {
	T := LocalizerFunc(b, locale)
	cfg := engine.DefaultSanitizerConfig()
	cfg.Fallback = T("sanitizer.fallback")
	cfg.GreetingFormat = T("sanitizer.greeting", map[string]any{"Name": "%s"})
	cfg.PolitenessSuffix = T("sanitizer.politeness_suffix")
	if MatchLocale(locale) == language.English {
		cfg.PolitenessMarkers = nil
		cfg.Incomplete, cfg.Completed = "", ""
	}
	// The suffix itself must count as a marker or Personalize is not idempotent.
	if marker := strings.TrimSpace(cfg.PolitenessSuffix); marker != "" && !slices.Contains(cfg.PolitenessMarkers, marker) {
		cfg.PolitenessMarkers = append(cfg.PolitenessMarkers, marker)
	}
	return cfg
}
