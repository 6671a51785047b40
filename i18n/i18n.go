// Package i18n provides internationalization for langsync's own
// user-facing strings.
//
// It wraps gotext: translations are embedded via //go:embed and loaded at
// startup by Init. T and N pass the original string through when no
// translation exists, matching gettext behavior.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// locales embeds the translation files, laid out as
// locales/{lang}/LC_MESSAGES/langsync.po.
//
//go:embed all:locales
var locales embed.FS

const domain = "langsync"

var po *gotext.Locale

// Init loads translations for lang. An empty lang auto-detects from the
// environment the way GNU gettext does. Call once at startup.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	po = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// T translates a string, returning it unchanged when untranslated.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage follows the GNU gettext variable order:
// LANGUAGE > LC_ALL > LC_MESSAGES > LANG.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		if env == "LANGUAGE" {
			val = strings.SplitN(val, ":", 2)[0]
		}
		if idx := strings.IndexByte(val, '.'); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
