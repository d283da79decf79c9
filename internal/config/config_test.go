package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YAMDB_SECRET_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, EmailBackendFile, cfg.Mail.Backend)
	assert.Equal(t, "support@yamdb.ru", cfg.Mail.From)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("YAMDB_SECRET_KEY", "s3cret")
	t.Setenv("YAMDB_PAGE_SIZE", "3")
	t.Setenv("YAMDB_EMAIL_BACKEND", "smtp")
	t.Setenv("YAMDB_SMTP_PORT", "2525")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.PageSize)
	assert.Equal(t, EmailBackendSMTP, cfg.Mail.Backend)
	assert.Equal(t, 2525, cfg.Mail.SMTPPort)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("YAMDB_SECRET_KEY", "  ")
	_, err := Load()
	assert.ErrorContains(t, err, "YAMDB_SECRET_KEY")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("YAMDB_SECRET_KEY", "s3cret")
	t.Setenv("YAMDB_EMAIL_BACKEND", "pigeon")
	_, err := Load()
	assert.ErrorContains(t, err, "pigeon")
}

func TestLimits(t *testing.T) {
	l := DefaultLimits()

	assert.True(t, l.ValidSlug("sci-fi_2"))
	assert.False(t, l.ValidSlug("sci fi"))
	assert.False(t, l.ValidSlug(""))

	assert.True(t, l.ValidUsername("jane.doe+1@x"))
	assert.False(t, l.ValidUsername("jane doe"))
	assert.False(t, l.ValidUsername("jane!"))
}
