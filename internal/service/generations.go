package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/supermarks-api/internal/storage"
)

// generationJanitor deletes artifact generations that never committed or were superseded.
// Failures are logged only; a leftover generation is unreachable from the database.
type generationJanitor struct {
	store  storage.Store
	logger zerolog.Logger
}

// abandon removes a generation whose rows never committed.
func (j generationJanitor) abandon(ctx context.Context, kind string, ownerID uint, generation string) {
	prefix := storage.Prefix(kind, ownerID, generation)
	if err := j.store.DeletePrefix(context.WithoutCancel(ctx), prefix); err != nil {
		j.logger.Warn().Err(err).Str("prefix", prefix).Msg("failed to remove abandoned generation")
	}
}

// prune removes generations superseded by current.
func (j generationJanitor) prune(ctx context.Context, kind string, ownerID uint, current string, previous []string) {
	seen := map[string]bool{current: true}
	for _, generation := range previous {
		if generation == "" || seen[generation] {
			continue
		}
		seen[generation] = true

		prefix := storage.Prefix(kind, ownerID, generation)
		if err := j.store.DeletePrefix(context.WithoutCancel(ctx), prefix); err != nil {
			j.logger.Warn().Err(err).Str("prefix", prefix).Msg("failed to prune stale generation")
		}
	}
}
