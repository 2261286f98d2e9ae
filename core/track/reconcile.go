package track

import (
	"context"
	"time"

	"mixflow/core/apperr"
	"mixflow/logger"
	"mixflow/repository"
	"mixflow/storage"
)

// orphanGrace protects files of uploads that are still being committed.
const orphanGrace = time.Hour

// ReconcileReport lists inconsistencies between rows and stored files.
type ReconcileReport struct {
	MissingAudio []repository.FileRef `json:"missingAudio"`
	OrphanFiles  []storage.Info       `json:"orphanFiles"`
	Pruned       bool                 `json:"pruned"`
}

// Reconcile finds tracks whose audio file is missing and stored files no
// track references. With prune, such tracks are deleted with their rows
// and orphan files older than an hour are removed.
func (s *Service) Reconcile(ctx context.Context, prune bool, now time.Time) (*ReconcileReport, error) {
	refs, err := s.tracks.ListRefs(ctx)
	if err != nil {
		return nil, apperr.Database(err)
	}
	present, err := s.audioPresent(ctx, refs)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	report := &ReconcileReport{Pruned: prune}
	referenced := map[string]bool{}
	for i, ref := range refs {
		// 缺失音频的曲目仍引用其封面, 封面不算孤儿文件
		referenced[ref.FileURL] = true
		if ref.ArtworkURL != nil {
			referenced[*ref.ArtworkURL] = true
		}
		if !present[i] {
			report.MissingAudio = append(report.MissingAudio, ref)
		}
	}

	for _, kind := range storage.Kinds {
		err := s.store.Walk(ctx, kind, func(info storage.Info) error {
			if !referenced[storage.URL(kind, info.Name)] {
				report.OrphanFiles = append(report.OrphanFiles, info)
			}
			return nil
		})
		if err != nil {
			return nil, apperr.Storage(err)
		}
	}

	if !prune {
		return report, nil
	}
	for _, ref := range report.MissingAudio {
		if err := s.tracks.DeleteCascade(ctx, ref.ID); err != nil {
			return report, apperr.Database(err)
		}
		s.removeFiles(ctx, ref.FileURL, ref.ArtworkURL)
		logger.Info("pruned track with missing audio", logger.String("trackId", ref.ID))
	}
	for _, info := range report.OrphanFiles {
		if now.Sub(info.ModTime) < orphanGrace {
			continue
		}
		if err := s.store.Remove(ctx, info.Kind, info.Name); err != nil {
			logger.Warn("failed to remove orphan file", logger.String("name", info.Name), logger.ErrorField(err))
			continue
		}
		logger.Info("removed orphan file", logger.String("kind", string(info.Kind)), logger.String("name", info.Name))
	}
	return report, nil
}
