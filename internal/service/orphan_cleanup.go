package service

import (
	"context"
	"time"

	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/store"

	"go.uber.org/zap"
)

// OrphanCleanup periodically deletes blobs that no note references. Blobs
// younger than grace are skipped so uploads whose note is still being saved
// aren't touched.
func OrphanCleanup(ctx context.Context, t, grace time.Duration, notes *store.Notes, blobs blob.Store) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Orphan blob cleanup attached", zap.Duration("tick_every", t), zap.Duration("grace", grace))

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := CleanOrphans(ctx, now.Add(-grace), notes, blobs)
				if err != nil {
					zap.L().Error("Orphan blob cleanup failed", zap.Error(err))
					continue
				}

				if n > 0 {
					zap.L().Info("Orphaned blobs deleted", zap.Int("count", n))
				}
			}
		}
	}()
}

// CleanOrphans deletes unreferenced blobs last modified before cutoff and
// returns how many were deleted
func CleanOrphans(ctx context.Context, cutoff time.Time, notes *store.Notes, blobs blob.Store) (int, error) {
	objects, err := blobs.List(ctx)
	if err != nil {
		return 0, err
	}

	if len(objects) == 0 {
		return 0, nil
	}

	referenced, err := notes.BlobNames(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, o := range objects {
		if _, ok := referenced[o.Key]; ok {
			continue
		}

		if !o.LastModified.Before(cutoff) {
			continue
		}

		if _, err := blobs.Delete(ctx, o.Key); err != nil {
			zap.L().Warn("Failed to delete orphaned blob", zap.String("blobName", o.Key), zap.Error(err))
			continue
		}

		deleted++
	}

	return deleted, nil
}
