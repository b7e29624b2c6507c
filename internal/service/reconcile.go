package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"meddocs/internal/model"
	"meddocs/internal/repository"
	"meddocs/internal/storage"
)

// DefaultGracePeriod keeps Reconcile away from blobs of uploads that are still in flight.
const DefaultGracePeriod = time.Hour

// ReconcileOptions controls what Reconcile repairs. With both flags false it only reports.
type ReconcileOptions struct {
	RemoveOrphans  bool
	RemoveDangling bool
	// Orphan blobs modified less than GracePeriod ago are reported but never removed.
	// Zero means DefaultGracePeriod; a negative value removes orphans regardless of age.
	GracePeriod time.Duration
}

// ReconcileReport lists what a sweep found and what it removed.
type ReconcileReport struct {
	OrphanBlobs       []string `json:"orphan_blobs"`
	DanglingDocuments []int64  `json:"dangling_documents"`
	RemovedBlobs      []string `json:"removed_blobs"`
	RemovedDocuments  []int64  `json:"removed_documents"`
}

// Reconcile compares the rows with the blobs under UploadPrefix.
//
// Rows are read before blobs. Since Upload writes the blob before the row, any row in the
// snapshot already had its blob written, so a row is only reported dangling when its blob
// is really gone. Blobs written after the row snapshot look orphaned; GracePeriod protects them.
func (s *documentService) Reconcile(ctx context.Context, opts ReconcileOptions) (report *ReconcileReport, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Reconcile")
	defer func() { finishSpan(span, err) }()

	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrPersistence, err)
	}
	blobs, err := s.store.List(ctx, UploadPrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("%w: list blobs: %w", ErrStorage, err)
	}

	report = &ReconcileReport{
		OrphanBlobs:       []string{},
		DanglingDocuments: []int64{},
		RemovedBlobs:      []string{},
		RemovedDocuments:  []int64{},
	}

	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}

	known := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		known[d.FilePath] = struct{}{}
	}
	present := make(map[string]struct{}, len(blobs))
	now := s.now()

	for _, b := range blobs {
		present[b.Key] = struct{}{}
		if _, ok := known[b.Key]; ok {
			continue
		}
		report.OrphanBlobs = append(report.OrphanBlobs, b.Key)
		if !opts.RemoveOrphans || now.Sub(b.LastModified) < grace {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Warn("remove orphan blob failed", zap.String("filepath", b.Key), zap.Error(err))
			continue
		}
		s.log.Info("removed orphan blob", zap.String("filepath", b.Key))
		report.RemovedBlobs = append(report.RemovedBlobs, b.Key)
	}

	for _, d := range docs {
		if _, ok := present[d.FilePath]; ok {
			continue
		}
		if !s.blobGone(ctx, d) {
			continue
		}
		report.DanglingDocuments = append(report.DanglingDocuments, d.ID)
		if !opts.RemoveDangling {
			continue
		}
		if err := s.repo.Delete(ctx, d.ID); err != nil {
			if !repository.IsNotFound(err) {
				s.log.Warn("remove dangling document failed", zap.Int64("document_id", d.ID), zap.Error(err))
			}
			continue
		}
		s.log.Info("removed dangling document", zap.Int64("document_id", d.ID), zap.String("filepath", d.FilePath))
		report.RemovedDocuments = append(report.RemovedDocuments, d.ID)
	}

	span.SetAttributes(
		attribute.Int("reconcile.orphan_blobs", len(report.OrphanBlobs)),
		attribute.Int("reconcile.dangling_documents", len(report.DanglingDocuments)),
	)
	return report, nil
}

// blobGone confirms a row's blob is absent with a direct lookup, so a listing that missed
// the key never causes a row to be dropped.
func (s *documentService) blobGone(ctx context.Context, d model.Document) bool {
	rc, _, err := s.store.Get(ctx, d.FilePath)
	switch {
	case err == nil:
		rc.Close()
		s.log.Warn("blob present but not listed",
			zap.Int64("document_id", d.ID),
			zap.String("filepath", d.FilePath),
		)
		return false
	case errors.Is(err, storage.ErrObjectNotFound):
		return true
	default:
		s.log.Warn("blob lookup failed",
			zap.Int64("document_id", d.ID),
			zap.String("filepath", d.FilePath),
			zap.Error(err),
		)
		return false
	}
}
