package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/converter"
	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/merge"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/NeroQue/cartridge-import-backend/internal/testutil"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/task"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   *ImportService
	store *database.MemoryStore
	fs    afero.Fs
}

func newFixture(t *testing.T, onError merge.OnError) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := database.NewMemoryStore()
	svc := NewImportService(
		archive.NewLoader(fs, "/work", nil),
		parser.NewManifestParser(nil),
		converter.NewConverter(nil, false, nil),
		merge.NewEngine(store, onError, nil),
		task.NewManager(),
		2,
		nil,
	)
	return &fixture{svc: svc, store: store, fs: fs}
}

func (f *fixture) archive(t *testing.T, name string, files map[string]string) string {
	return testutil.WriteCartridge(t, f.fs, "/uploads/"+name, files)
}

func (f *fixture) waitDone(t *testing.T, id string) *task.Task {
	t.Helper()
	var got *task.Task
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = f.svc.Tasks.Get(id)
		return ok && got.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestRunCompletesWithWarnings(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	course := uuid.New()
	id := f.svc.Tasks.Create(task.TypeImport, course.String())

	report, err := f.svc.Run(context.Background(), id, ImportRequest{
		CourseID:    course,
		ArchivePath: f.archive(t, "course.zip", testutil.SampleFiles()),
	})
	require.NoError(t, err)
	assert.Equal(t, 17, report.Created)

	got, _ := f.svc.Tasks.Get(id)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, []string{converter.SecurityWarning("Bob's Tool"), converter.MissingResourceWarning("Gone", "does_not_exist")}, got.Warnings)
	assert.Same(t, report, got.Result)

	// entities carry the run that created them
	a1, err := f.store.FindActive(context.Background(), course, models.KindAttachment, "a1")
	require.NoError(t, err)
	assert.Equal(t, id, a1.RunID.String())

	// extracted files are gone, the archive was not an upload so it stays
	entries, err := afero.ReadDir(f.fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, entries)
	exists, _ := afero.Exists(f.fs, "/uploads/course.zip")
	assert.True(t, exists)
}

func TestRunFailsOnMissingManifest(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	course := uuid.New()
	id := f.svc.Tasks.Create(task.TypeImport, course.String())

	_, err := f.svc.Run(context.Background(), id, ImportRequest{
		CourseID:    course,
		ArchivePath: f.archive(t, "empty.zip", map[string]string{"readme.txt": "hi"}),
	})
	assert.ErrorIs(t, err, archive.ErrManifestNotFound)

	got, _ := f.svc.Tasks.Get(id)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "manifest")

	counts, err := f.store.CountEntities(context.Background(), course, "")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRunFailsOnMalformedManifest(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	course := uuid.New()
	id := f.svc.Tasks.Create(task.TypeImport, course.String())

	_, err := f.svc.Run(context.Background(), id, ImportRequest{
		CourseID:    course,
		ArchivePath: f.archive(t, "bad.zip", map[string]string{"imsmanifest.xml": "<manifest><resources>"}),
	})
	assert.ErrorIs(t, err, parser.ErrMalformedManifest)

	got, _ := f.svc.Tasks.Get(id)
	assert.Equal(t, task.StatusFailed, got.Status)
}

func TestRunAbortPolicyFailsTask(t *testing.T) {
	f := newFixture(t, merge.OnErrorAbort)
	f.store.FailOn = map[string]error{"lti1": errors.New("write timeout")}
	course := uuid.New()
	id := f.svc.Tasks.Create(task.TypeImport, course.String())

	_, err := f.svc.Run(context.Background(), id, ImportRequest{
		CourseID:    course,
		ArchivePath: f.archive(t, "course.zip", testutil.SampleFiles()),
	})
	require.Error(t, err)

	got, _ := f.svc.Tasks.Get(id)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "write timeout")
	// conversion warnings survive the failure
	assert.Contains(t, got.Warnings, converter.SecurityWarning("Bob's Tool"))
}

func TestRunWithSelection(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	course := uuid.New()
	spec, err := selection.Parse([]byte(`{"all_external_tools": "1"}`))
	require.NoError(t, err)
	id := f.svc.Tasks.Create(task.TypeImport, course.String())

	report, err := f.svc.Run(context.Background(), id, ImportRequest{
		CourseID:    course,
		ArchivePath: f.archive(t, "course.zip", testutil.SampleFiles()),
		Selection:   spec,
	})
	require.NoError(t, err)
	assert.Equal(t, map[models.RecordKind]int{models.KindExternalTool: 1}, report.Counts)
}

func TestStartRunsInBackgroundAndRemovesUpload(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	course := uuid.New()
	path := f.archive(t, "upload.zip", testutil.SampleFiles())

	ctx, cancel := context.WithCancel(context.Background())
	id, err := f.svc.Start(ctx, ImportRequest{CourseID: course, ArchivePath: path, RemoveArchive: true})
	require.NoError(t, err)
	// the caller going away doesn't stop the run
	cancel()

	got := f.waitDone(t, id)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, course.String(), got.CourseID)

	exists, _ := afero.Exists(f.fs, path)
	assert.False(t, exists)
}

func TestStartValidatesRequest(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)

	_, err := f.svc.Start(context.Background(), ImportRequest{ArchivePath: "/x.zip"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Start(context.Background(), ImportRequest{CourseID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, f.svc.Tasks.List(""))
}

func TestBatchImportAcrossCourses(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	path := f.archive(t, "course.zip", testutil.SampleFiles())
	bad := f.archive(t, "bad.zip", map[string]string{"nothing.txt": ""})

	shared := uuid.New()
	reqs := []ImportRequest{
		{CourseID: uuid.New(), ArchivePath: path},
		{CourseID: shared, ArchivePath: path},
		{CourseID: shared, ArchivePath: path},
		{CourseID: uuid.New(), ArchivePath: bad},
	}

	ids, err := f.svc.BatchImport(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, ids, 4)

	for i, id := range ids {
		got := f.waitDone(t, id)
		if i == 3 {
			assert.Equal(t, task.StatusFailed, got.Status)
		} else {
			assert.Equal(t, task.StatusCompleted, got.Status)
		}
	}

	// two imports into the same course: every identity has one active copy
	all, err := f.store.ListEntities(context.Background(), shared, models.EntityFilter{Kinds: []models.RecordKind{models.KindAttachment}})
	require.NoError(t, err)
	assert.Len(t, all, 6)
	counts, err := f.store.CountEntities(context.Background(), shared, models.StateActive)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.KindAttachment])
}

func TestRunBatchReturnsFirstFailure(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)
	bad := f.archive(t, "bad.zip", map[string]string{"nothing.txt": ""})
	reqs := []ImportRequest{{CourseID: uuid.New(), ArchivePath: bad}}
	ids := []string{f.svc.Tasks.Create(task.TypeImport, "")}

	err := f.svc.RunBatch(context.Background(), ids, reqs)
	assert.ErrorIs(t, err, archive.ErrManifestNotFound)

	err = f.svc.RunBatch(context.Background(), nil, reqs)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConvertOnly(t *testing.T) {
	f := newFixture(t, merge.OnErrorSkip)

	doc, err := f.svc.Convert(context.Background(), f.archive(t, "course.zip", testutil.SampleFiles()))
	require.NoError(t, err)
	assert.Equal(t, "Sample Course", doc.Title)
	assert.Len(t, doc.Modules, 3)
	assert.Empty(t, f.svc.Tasks.List(""))
}
