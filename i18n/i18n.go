// Package i18n holds the console's user-facing copy.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"medstore-console/guard"
)

// BaseLocale is the source locale every other locale falls back to.
const BaseLocale = "en-US"

//go:embed locales/*.yaml
var localesFS embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog is a set of translated messages plus a language matcher.
type Catalog struct {
	builder *catalog.Builder
	matcher language.Matcher
	keys    map[string]bool
}

var defaultCatalog = mustLoad(localesFS)

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

func mustLoad(fsys fs.FS) *Catalog {
	c, err := Load(fsys)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads locales/*.yaml from fsys. The base locale must be present.
func Load(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	c := &Catalog{
		builder: catalog.NewBuilder(catalog.Fallback(base)),
		keys:    map[string]bool{},
	}
	tags := []language.Tag{base}
	haveBase := false

	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", path, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", path, err)
		}
		tag, err := language.Parse(strings.TrimSpace(file.Locale))
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", path, err)
		}
		if tag == base {
			haveBase = true
		} else {
			tags = append(tags, tag)
		}
		for key, value := range file.Messages {
			if err := c.builder.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("locale %s: key %q: %w", path, key, err)
			}
			if tag == base {
				c.keys[key] = true
			}
		}
	}
	if !haveBase {
		return nil, fmt.Errorf("base locale %s is not defined", BaseLocale)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// Match picks the best supported language for an Accept-Language header.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(c.matcher, acceptLanguage)
	return tag
}

// For returns the copy for tag.
func (c *Catalog) For(tag language.Tag) *Copy {
	return &Copy{
		printer: message.NewPrinter(tag, message.Catalog(c.builder)),
		keys:    c.keys,
	}
}

// Copy renders messages for one language.
type Copy struct {
	printer *message.Printer
	keys    map[string]bool
}

// T returns the message for key, or fallback when the key is unknown.
func (c *Copy) T(key string, fallback string, args ...any) string {
	return localizeWithFallback(c, key, fallback, args...)
}

// Notice returns the one-time notification text for an authentication signal.
func (c *Copy) Notice(sig guard.Signal) string {
	switch sig.Kind {
	case guard.SignalSignedUp:
		return c.T("notice.signed_up", "Welcome! Your account has been created with %s", sig.Email)
	case guard.SignalSignedIn:
		return c.T("notice.signed_in", "Welcome back, %s", sig.Email)
	case guard.SignalFailed:
		return c.T("notice.provider_failed", "Google authentication failed. Please try again or use email/password.")
	default:
		return ""
	}
}

func localizeWithFallback(c *Copy, key string, fallback string, args ...any) string {
	if c != nil && c.printer != nil && c.keys[key] {
		value := strings.TrimSpace(c.printer.Sprintf(key, args...))
		if value != "" && value != key {
			return value
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(fallback, args...)
	}
	return fallback
}
