package service

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func newTestStore(t *testing.T) *storage.Local {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir(), testLogger())
	require.NoError(t, err)
	return store
}

func pngBytes(t *testing.T, width, height int, fill color.Color) []byte {
	t.Helper()
	data, err := pipeline.EncodePNG(imaging.New(width, height, fill))
	require.NoError(t, err)
	return data
}

// minimalPDF is enough for mimetype detection; conversion is faked in tests.
var minimalPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type recordingPublisher struct {
	events []pipeline.StageCompleted
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event pipeline.StageCompleted) error {
	p.events = append(p.events, event)
	return p.err
}
