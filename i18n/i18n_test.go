package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"medstore-console/guard"
)

func TestNoticesInBaseLocale(t *testing.T) {
	en := Default().For(language.MustParse("en-US"))

	assert.Equal(t, "Welcome! Your account has been created with a@b.com",
		en.Notice(guard.Signal{Kind: guard.SignalSignedUp, Email: "a@b.com"}))
	assert.Equal(t, "Welcome back, a@b.com",
		en.Notice(guard.Signal{Kind: guard.SignalSignedIn, Email: "a@b.com"}))
	assert.Equal(t, "Google authentication failed. Please try again or use email/password.",
		en.Notice(guard.Signal{Kind: guard.SignalFailed}))
	assert.Empty(t, en.Notice(guard.Signal{}))
}

func TestMatchAcceptLanguage(t *testing.T) {
	c := Default()

	spanish := c.For(c.Match("es-MX,es;q=0.9,en;q=0.5"))
	assert.Equal(t, "Bienvenido de nuevo, a@b.com",
		spanish.Notice(guard.Signal{Kind: guard.SignalSignedIn, Email: "a@b.com"}))

	unknown := c.For(c.Match("ja-JP"))
	assert.Equal(t, "Sign in", unknown.T("form.sign_in", "Sign in"))
}

func TestUnknownKeyUsesFallback(t *testing.T) {
	en := Default().For(language.MustParse("en-US"))

	assert.Equal(t, "Hello, Bob", en.T("missing.key", "Hello, %s", "Bob"))
	assert.Equal(t, "plain", en.T("missing.key", "plain"))
}

func TestLoadRequiresBaseLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/es.yaml": {Data: []byte("locale: es\nmessages:\n  a: b\n")},
	}
	_, err := Load(fsys)
	assert.Error(t, err)
}

func TestLoadRejectsBadLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en-US.yaml": {Data: []byte("locale: en-US\nmessages:\n  a: b\n")},
		"locales/xx.yaml":    {Data: []byte("locale: not a tag!\nmessages:\n  a: b\n")},
	}
	_, err := Load(fsys)
	assert.Error(t, err)
}

func TestLocalesShareKeys(t *testing.T) {
	base, err := localesFS.ReadFile("locales/en-US.yaml")
	require.NoError(t, err)
	other, err := localesFS.ReadFile("locales/es.yaml")
	require.NoError(t, err)

	c, err := Load(fstest.MapFS{
		"locales/en-US.yaml": {Data: base},
		"locales/es.yaml":    {Data: other},
	})
	require.NoError(t, err)

	const untranslated = "untranslated"
	spanish := c.For(language.Spanish)
	for key := range c.keys {
		assert.NotEqual(t, untranslated, spanish.T(key, untranslated), key)
	}
}
