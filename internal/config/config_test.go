package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPERMARKS_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, "local", cfg.StorageBackend)
	require.Equal(t, "poppler", cfg.PDFConverter)
	require.Equal(t, 150, cfg.PDFDPI)
	require.Equal(t, "memory", cfg.LockBackend)
	require.Equal(t, 30*time.Second, cfg.LockWaitTimeout)
	require.Equal(t, []string{"eng"}, cfg.TesseractLanguages)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, int64(25*1024*1024), cfg.UploadLimitBytes())
	require.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	require.False(t, cfg.AccessLog)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUPERMARKS_JWT_SECRET", "secret")
	t.Setenv("SUPERMARKS_PDF_DPI", "300")
	t.Setenv("SUPERMARKS_PDF_CONVERTER", "DOCKER")
	t.Setenv("SUPERMARKS_OCR_TESSERACT_LANGUAGES", "eng,deu")
	t.Setenv("SUPERMARKS_LOCK_BACKEND", "redis")
	t.Setenv("SUPERMARKS_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SUPERMARKS_CORS_ALLOW_ORIGINS", "https://marks.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 300, cfg.PDFDPI)
	require.Equal(t, "docker", cfg.PDFConverter)
	require.Equal(t, []string{"eng", "deu"}, cfg.TesseractLanguages)
	require.Equal(t, "redis", cfg.LockBackend)
	require.Equal(t, []string{"https://marks.example.com", "https://admin.example.com"}, cfg.CORSAllowOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt":       {},
		"bad converter":     {"SUPERMARKS_JWT_SECRET": "s", "SUPERMARKS_PDF_CONVERTER": "ghostscript"},
		"bad duration":      {"SUPERMARKS_JWT_SECRET": "s", "SUPERMARKS_LOCK_TTL": "soon"},
		"redis without url": {"SUPERMARKS_JWT_SECRET": "s", "SUPERMARKS_LOCK_BACKEND": "redis"},
		"bad driver":        {"SUPERMARKS_JWT_SECRET": "s", "SUPERMARKS_DATABASE_DRIVER": "mysql"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
