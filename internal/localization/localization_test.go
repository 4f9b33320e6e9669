package localization_test

import (
	"os"
	"path/filepath"
	"testing"

	"marketchat/backend/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocale(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLocalizer_Fallback(t *testing.T) {
	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{"greeting": "Hello %s", "only_en": "english"}`)
	writeLocale(t, dir, "uk.json", `{"greeting": "Привіт %s"}`)
	writeLocale(t, dir, "README.txt", `ignored`)

	l, err := localization.NewLocalizer(dir, "en")
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "uk"}, l.Languages())
	assert.Equal(t, "Привіт Olha", l.Format("uk", "greeting", "Olha"))
	assert.Equal(t, "english", l.GetString("uk", "only_en"))
	assert.Equal(t, "Hello Sam", l.Format("de", "greeting", "Sam"))
	assert.Equal(t, "missing_key", l.GetString("en", "missing_key"))
}

func TestLocalizer_Errors(t *testing.T) {
	_, err := localization.NewLocalizer(filepath.Join(t.TempDir(), "nope"), "en")
	assert.Error(t, err)

	dir := t.TempDir()
	writeLocale(t, dir, "en.json", `{broken`)
	_, err = localization.NewLocalizer(dir, "en")
	assert.Error(t, err)

	dir = t.TempDir()
	writeLocale(t, dir, "uk.json", `{}`)
	_, err = localization.NewLocalizer(dir, "en")
	assert.Error(t, err)
}

func TestLocalizer_ShippedLocales(t *testing.T) {
	l, err := localization.NewLocalizer("locales", "en")
	require.NoError(t, err)

	for _, lang := range l.Languages() {
		assert.NotEqual(t, "notification_header", l.GetString(lang, "notification_header"), lang)
	}
}
