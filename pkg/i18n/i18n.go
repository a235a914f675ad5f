// Package i18n localizes gatewayerr messages for JSON-RPC clients, ported
// from the teacher's internal/i18n (go-i18n + toml bundles + x/text
// language matching) but trimmed to this gateway's single consumer: a
// Translator injected into internal/gateway, not a package-global
// singleton reached from dozens of REST handlers.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/aci-labs/mcp-gateway/internal/config"
)

// Translator renders a gatewayerr.Kind into a localized label, keyed by
// message ID == the Kind string (e.g. "ToolNotFound"). Falls back to the
// Kind itself when no bundle carries that id, matching the teacher's
// "untranslated id passes through unchanged" behavior.
type Translator struct {
	bundle      *i18n.Bundle
	defaultLang language.Tag
}

// New builds a Translator and loads every *.toml file in cfg.Dir as a
// message bundle. A missing or empty Dir is not an error: Translate then
// always falls back to the bare message ID, which is the correct behavior
// for a deployment that hasn't configured localization.
func New(cfg config.I18nConfig) (*Translator, error) {
	lang := language.English
	if cfg.DefaultLanguage != "" {
		if tag, err := language.Parse(cfg.DefaultLanguage); err == nil {
			lang = tag
		}
	}

	bundle := i18n.NewBundle(lang)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	t := &Translator{bundle: bundle, defaultLang: lang}
	if cfg.Dir == "" {
		return t, nil
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("i18n: read translations dir %s: %w", cfg.Dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		if _, err := bundle.LoadMessageFile(filepath.Join(cfg.Dir, entry.Name())); err != nil {
			return nil, fmt.Errorf("i18n: load %s: %w", entry.Name(), err)
		}
	}
	return t, nil
}

// Translate looks up msgID (a gatewayerr.Kind string) for lang, falling
// back through the bundle's default language and finally to msgID itself.
func (t *Translator) Translate(msgID, lang string, data map[string]any) string {
	if lang == "" {
		lang = t.defaultLang.String()
	}
	localizer := i18n.NewLocalizer(t.bundle, lang, t.defaultLang.String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
	if err != nil {
		return msgID
	}
	return msg
}

// LanguageFromHeader picks a BCP-47 tag out of an Accept-Language header
// value, defaulting to the bundle's own default language when absent or
// unparseable — mirrors the teacher's getLanguageFromRequest, minus the
// X-Lang-header special case (this gateway has no per-request language
// override surface beyond the standard HTTP header).
func (t *Translator) LanguageFromHeader(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.defaultLang.String()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLang.String()
	}
	return tags[0].String()
}
