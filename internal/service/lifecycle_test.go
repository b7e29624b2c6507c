package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meddocs/internal/model"
	"meddocs/internal/repository"
	"meddocs/internal/storage"
)

// memRepo is an in-memory DocumentRepository with a ticking clock for created_at.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time
	rows   map[int64]model.Document
}

var _ repository.DocumentRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{clock: fixedNow, rows: map[int64]model.Document{}}
}

func (r *memRepo) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.clock = r.clock.Add(time.Second)
	d := *doc
	d.ID = r.nextID
	d.CreatedAt = r.clock
	r.rows[d.ID] = d
	return &d, nil
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (r *memRepo) List(_ context.Context) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Document, 0, len(r.rows))
	for _, d := range r.rows {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.rows, id)
	return nil
}

func newLifecycle(t *testing.T) (DocumentService, *memRepo, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocal(root)
	require.NoError(t, err)
	repo := newMemRepo()
	var n int64
	svc := NewDocumentService(store, repo, zap.NewNop(), WithRandom(func() int64 {
		n++
		return n
	}))
	return svc, repo, root
}

func pdfInput(name, title string, size int) UploadInput {
	content := bytes.Repeat([]byte("a"), size)
	return UploadInput{
		Content:     bytes.NewReader(content),
		Filename:    name,
		ContentType: PDFMediaType,
		Size:        int64(size),
		Title:       title,
	}
}

func blobFiles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, UploadPrefix))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestLifecycle_Scenario(t *testing.T) {
	svc, _, root := newLifecycle(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, pdfInput("report.pdf", "Lab Result", 2048))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, "Lab Result", doc.Title)
	assert.Equal(t, int64(2048), doc.FileSize)

	got, err := svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, *doc, docs[0])

	_, content, err := svc.Stream(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), content.Size)
	b, err := io.ReadAll(content)
	require.NoError(t, err)
	require.NoError(t, content.Close())
	assert.Len(t, b, 2048)

	require.NoError(t, svc.Delete(ctx, doc.ID))

	docs, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, blobFiles(t, root))

	_, err = svc.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// repeating the delete fails and touches nothing else
	other, err := svc.Upload(ctx, pdfInput("other.pdf", "", 10))
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, doc.ID), ErrNotFound)
	_, err = svc.Get(ctx, other.ID)
	assert.NoError(t, err)
	assert.Len(t, blobFiles(t, root), 1)
}

func TestLifecycle_RejectedUploadHasNoSideEffects(t *testing.T) {
	svc, _, root := newLifecycle(t)
	ctx := context.Background()

	in := pdfInput("notes.txt", "", 10)
	in.ContentType = "text/plain"
	_, err := svc.Upload(ctx, in)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Upload(ctx, pdfInput("big.pdf", "", int(MaxUploadSize)+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, blobFiles(t, root))
}

func TestLifecycle_BodyLongerThanDeclared(t *testing.T) {
	svc, _, root := newLifecycle(t)

	in := pdfInput("big.pdf", "", int(MaxUploadSize)+10)
	in.Size = 100
	_, err := svc.Upload(context.Background(), in)

	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, blobFiles(t, root))
}

func TestLifecycle_ListNewestFirst(t *testing.T) {
	svc, _, _ := newLifecycle(t)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"t1.pdf", "t2.pdf", "t3.pdf"} {
		d, err := svc.Upload(ctx, pdfInput(name, "", 1))
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestLifecycle_BlobRemovedOutOfBand(t *testing.T) {
	svc, _, root := newLifecycle(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, pdfInput("report.pdf", "", 16))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(doc.FilePath))))

	_, _, err = svc.Stream(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrBlobMissing)

	// delete still succeeds with the blob already gone
	require.NoError(t, svc.Delete(ctx, doc.ID))
	_, err = svc.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_Reconcile(t *testing.T) {
	svc, repo, root := newLifecycle(t)
	ctx := context.Background()

	kept, err := svc.Upload(ctx, pdfInput("kept.pdf", "", 4))
	require.NoError(t, err)
	dangling, err := svc.Upload(ctx, pdfInput("dangling.pdf", "", 4))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(dangling.FilePath))))

	orphan := filepath.Join(root, UploadPrefix, "1-1.pdf")
	require.NoError(t, os.WriteFile(orphan, []byte("%PDF"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	report, err := svc.Reconcile(ctx, ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/1-1.pdf"}, report.OrphanBlobs)
	assert.Equal(t, []int64{dangling.ID}, report.DanglingDocuments)
	assert.Empty(t, report.RemovedBlobs)
	assert.Empty(t, report.RemovedDocuments)

	report, err = svc.Reconcile(ctx, ReconcileOptions{RemoveOrphans: true, RemoveDangling: true, GracePeriod: DefaultGracePeriod})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/1-1.pdf"}, report.RemovedBlobs)
	assert.Equal(t, []int64{dangling.ID}, report.RemovedDocuments)

	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = repo.FindByID(ctx, dangling.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = repo.FindByID(ctx, kept.ID)
	assert.NoError(t, err)

	// a second sweep finds nothing
	report, err = svc.Reconcile(ctx, ReconcileOptions{RemoveOrphans: true, RemoveDangling: true})
	require.NoError(t, err)
	assert.Empty(t, report.OrphanBlobs)
	assert.Empty(t, report.DanglingDocuments)
}

func TestLifecycle_ReconcileGracePeriod(t *testing.T) {
	svc, _, root := newLifecycle(t)

	fresh := filepath.Join(root, UploadPrefix, "2-2.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(fresh), 0o750))
	require.NoError(t, os.WriteFile(fresh, []byte("%PDF"), 0o600))

	report, err := svc.Reconcile(context.Background(), ReconcileOptions{RemoveOrphans: true, GracePeriod: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/2-2.pdf"}, report.OrphanBlobs)
	assert.Empty(t, report.RemovedBlobs)

	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestLifecycle_ReconcileSymlinkedUploads(t *testing.T) {
	root := t.TempDir()
	volume := t.TempDir()
	require.NoError(t, os.Symlink(volume, filepath.Join(root, UploadPrefix)))

	store, err := storage.NewLocal(root)
	require.NoError(t, err)
	repo := newMemRepo()
	svc := NewDocumentService(store, repo, zap.NewNop())
	ctx := context.Background()

	doc, err := svc.Upload(ctx, pdfInput("report.pdf", "", 16))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(volume, filepath.Base(doc.FilePath)))
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, ReconcileOptions{RemoveOrphans: true, RemoveDangling: true, GracePeriod: -1})
	require.NoError(t, err)
	assert.Empty(t, report.OrphanBlobs)
	assert.Empty(t, report.DanglingDocuments)
	assert.Empty(t, report.RemovedDocuments)

	_, content, err := svc.Stream(ctx, doc.ID)
	require.NoError(t, err)
	require.NoError(t, content.Close())
}

func TestLifecycle_ReconcileZeroGraceUsesDefault(t *testing.T) {
	svc, _, root := newLifecycle(t)

	fresh := filepath.Join(root, UploadPrefix, "3-3.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(fresh), 0o750))
	require.NoError(t, os.WriteFile(fresh, []byte("%PDF"), 0o600))

	report, err := svc.Reconcile(context.Background(), ReconcileOptions{RemoveOrphans: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/3-3.pdf"}, report.OrphanBlobs)
	assert.Empty(t, report.RemovedBlobs)
	_, err = os.Stat(fresh)
	require.NoError(t, err)

	// a negative grace period removes regardless of age
	report, err = svc.Reconcile(context.Background(), ReconcileOptions{RemoveOrphans: true, GracePeriod: -1})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/3-3.pdf"}, report.RemovedBlobs)
	_, err = os.Stat(fresh)
	assert.True(t, os.IsNotExist(err))
}

func TestLifecycle_ReconcileStaleTempFile(t *testing.T) {
	svc, _, root := newLifecycle(t)

	dir := filepath.Join(root, UploadPrefix)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	stale := filepath.Join(dir, ".upload-42")
	require.NoError(t, os.WriteFile(stale, []byte("%PD"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	report, err := svc.Reconcile(context.Background(), ReconcileOptions{RemoveOrphans: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/.upload-42"}, report.OrphanBlobs)
	assert.Equal(t, []string{"uploads/.upload-42"}, report.RemovedBlobs)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
