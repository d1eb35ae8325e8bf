package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/internal/jobs"
)

var (
	_ jobs.Store    = (*JobStore)(nil)
	_ content.Store = (*DocumentStore)(nil)
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "translate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string, createdAt time.Time) *jobs.Job {
	return &jobs.Job{
		ID:             id,
		DocumentID:     "doc-1",
		TargetLanguage: "fr",
		Mode:           jobs.ModeFull,
		Status:         jobs.StatusPending,
		Steps: []jobs.Step{
			{Kind: jobs.StepTitle, Content: "Hello"},
			{Kind: jobs.StepContent, Content: "Body text"},
		},
		Results:   []string{},
		Log:       []string{"Job enqueued."},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestJobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Jobs()

	now := time.Now()
	created := sampleJob("job-1", now)
	require.NoError(t, store.CreateJob(ctx, created))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, created.DocumentID, got.DocumentID)
	assert.Equal(t, created.TargetLanguage, got.TargetLanguage)
	assert.Equal(t, created.Mode, got.Mode)
	assert.Equal(t, created.Status, got.Status)
	assert.Equal(t, created.Steps, got.Steps)
	assert.Equal(t, created.Results, got.Results)
	assert.Equal(t, created.Log, got.Log)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(now))

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestJobStore_ListIsFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Jobs()

	base := time.Now()
	require.NoError(t, store.CreateJob(ctx, sampleJob("job-b", base.Add(time.Second))))
	require.NoError(t, store.CreateJob(ctx, sampleJob("job-a", base)))
	require.NoError(t, store.CreateJob(ctx, sampleJob("job-c", base.Add(2*time.Second))))

	list, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "job-a", list[0].ID)
	assert.Equal(t, "job-b", list[1].ID)
	assert.Equal(t, "job-c", list[2].ID)
}

func TestJobStore_UpdateJobCAS(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Jobs()

	now := time.Now()
	job := sampleJob("job-1", now)
	require.NoError(t, store.CreateJob(ctx, job))

	// Matching expected timestamp wins.
	job.Status = jobs.StatusRunning
	job.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.UpdateJob(ctx, job, now))

	// A writer holding the old timestamp loses.
	stale := sampleJob("job-1", now)
	stale.Status = jobs.StatusFailed
	stale.UpdatedAt = now.Add(2 * time.Second)
	err := store.UpdateJob(ctx, stale, now)
	assert.ErrorIs(t, err, jobs.ErrStaleJob)

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, got.Status)

	err = store.UpdateJob(ctx, sampleJob("missing", now), now)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestJobStore_DeleteJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Jobs()

	require.NoError(t, store.CreateJob(ctx, sampleJob("job-1", time.Now())))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	_, err := store.GetJob(ctx, "job-1")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	assert.ErrorIs(t, store.DeleteJob(ctx, "job-1"), jobs.ErrNotFound)
}

func TestDocumentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Documents()

	id, err := store.Create(ctx, &content.Document{
		Title:   "Hello",
		Body:    "Body text",
		Excerpt: "Sum",
		Type:    "post",
		Status:  "publish",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "Body text", got.Body)
	assert.Equal(t, "post", got.Type)

	got.Body = "Edited body"
	require.NoError(t, store.Update(ctx, got))
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Edited body", got.Body)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, content.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &content.Document{ID: "missing"}), content.ErrNotFound)
}

func TestDocumentStore_Meta(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Documents()

	id, err := store.Create(ctx, &content.Document{Title: "Hello"})
	require.NoError(t, err)

	// Unset keys read as empty without error.
	value, err := store.GetMeta(ctx, id, content.MetaLanguage)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetMeta(ctx, id, content.MetaLanguage, "en"))
	require.NoError(t, store.SetMeta(ctx, id, content.MetaLanguage, "de"))
	value, err = store.GetMeta(ctx, id, content.MetaLanguage)
	require.NoError(t, err)
	assert.Equal(t, "de", value)

	other, err := store.Create(ctx, &content.Document{Title: "Other"})
	require.NoError(t, err)
	require.NoError(t, store.SetMeta(ctx, other, content.MetaGroupID, "g-1"))
	require.NoError(t, store.SetMeta(ctx, id, content.MetaGroupID, "g-1"))

	ids, err := store.ListIDsByMeta(ctx, content.MetaGroupID, "g-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{id, other}, ids)
}

func TestDocumentStore_DeleteRemovesMeta(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Documents()

	id, err := store.Create(ctx, &content.Document{Title: "Hello"})
	require.NoError(t, err)
	require.NoError(t, store.SetMeta(ctx, id, content.MetaGroupID, "g-1"))

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, content.ErrNotFound)
	ids, err := store.ListIDsByMeta(ctx, content.MetaGroupID, "g-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "translate.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Jobs().CreateJob(context.Background(), sampleJob("job-1", time.Now())))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Jobs().GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
}
