package merge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/converter"
	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/NeroQue/cartridge-import-backend/internal/testutil"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func sampleDocument(t *testing.T) *models.CourseDocument {
	t.Helper()

	loader := archive.NewLoader(afero.NewMemMapFs(), "/work", nil)
	path := testutil.WriteCartridge(t, loader.Fs, "/uploads/course.zip", testutil.SampleFiles())
	pkg, err := loader.Extract(context.Background(), path)
	require.NoError(t, err)
	defer pkg.Close()

	manifest, err := parser.NewManifestParser(nil).ParsePackage(pkg)
	require.NoError(t, err)
	doc, err := converter.NewConverter(nil, false, nil).Convert(context.Background(), pkg, manifest)
	require.NoError(t, err)
	return doc
}

func active(t *testing.T, store *database.MemoryStore, course uuid.UUID, kind models.RecordKind, id string) *models.Entity {
	t.Helper()
	e, err := store.FindActive(context.Background(), course, kind, id)
	require.NoError(t, err)
	return e
}

func list(t *testing.T, store *database.MemoryStore, course uuid.UUID, filter models.EntityFilter) []*models.Entity {
	t.Helper()
	out, err := store.ListEntities(context.Background(), course, filter)
	require.NoError(t, err)
	return out
}

func TestMergeFullImport(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, OnErrorSkip, nil)
	course := uuid.New()

	report, err := engine.MergeInto(context.Background(), course, sampleDocument(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 17, report.Created)
	assert.Equal(t, 0, report.Superseded)
	assert.Equal(t, map[models.RecordKind]int{
		models.KindAttachment:      3,
		models.KindExternalTool:    1,
		models.KindDiscussionTopic: 1,
		models.KindAssignment:      1,
		models.KindModule:          3,
		models.KindContentTag:      8,
	}, report.Counts)
	assert.Equal(t, []string{converter.SecurityWarning("Bob's Tool"), converter.MissingResourceWarning("Gone", "does_not_exist")}, report.Warnings)

	week1 := active(t, store, course, models.KindModule, "m1")
	misc := active(t, store, course, models.KindModule, parser.MiscModuleID)
	week2 := active(t, store, course, models.KindModule, "m2")
	assert.Equal(t, []int{1, 2, 3}, []int{week1.Position, misc.Position, week2.Position})

	reading := active(t, store, course, models.KindContentTag, "m1_reading")
	a1 := active(t, store, course, models.KindAttachment, "a1")
	assert.Equal(t, &models.ContentRef{Kind: models.KindAttachment, ID: a1.ID}, reading.Target)
	assert.Equal(t, week1.ID, reading.ParentID.UUID)

	var indents, positions []int
	for _, id := range []string{"m1_reading", "m1_extras", "m1_discuss", "m1_deep", "m1_tool", "m1_gone"} {
		tag := active(t, store, course, models.KindContentTag, id)
		indents = append(indents, tag.Indent)
		positions = append(positions, tag.Position)
	}
	assert.Equal(t, []int{0, 0, 1, 1, 2, 0}, indents)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, positions)

	gone := active(t, store, course, models.KindContentTag, "m1_gone")
	assert.Nil(t, gone.Target)
	assert.Equal(t, "Gone", gone.Title)

	link := active(t, store, course, models.KindContentTag, "top_link")
	assert.Equal(t, "https://example.com/course", link.Attributes["url"])
}

func TestMergeRewritesFileReferences(t *testing.T) {
	store := database.NewMemoryStore()
	course := uuid.New()

	_, err := NewEngine(store, OnErrorSkip, nil).MergeInto(context.Background(), course, sampleDocument(t), nil)
	require.NoError(t, err)

	logo := active(t, store, course, models.KindAttachment, "img1")
	topic := active(t, store, course, models.KindDiscussionTopic, "dt1")
	message := topic.Attributes["message"].(string)
	assert.Contains(t, message, `src="/courses/`+course.String()+`/files/`+logo.ID.String()+`/preview"`)
	assert.NotContains(t, message, "$CC_FILE_REF$")

	essay := active(t, store, course, models.KindAttachment, "f2")
	assignment := active(t, store, course, models.KindAssignment, "f2")
	assert.Contains(t, assignment.Attributes["description"], models.FilePreviewURL(course.String(), essay.ID.String()))
	assert.Equal(t, &models.ContentRef{Kind: models.KindAttachment, ID: essay.ID}, assignment.Target)
}

func TestMergeReimportSupersedes(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, OnErrorSkip, nil)
	course := uuid.New()
	doc := sampleDocument(t)

	_, err := engine.MergeInto(context.Background(), course, doc, nil)
	require.NoError(t, err)
	first := active(t, store, course, models.KindAttachment, "a1")

	report, err := engine.MergeInto(context.Background(), course, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 17, report.Superseded)

	attachments := list(t, store, course, models.EntityFilter{Kinds: []models.RecordKind{models.KindAttachment}})
	require.Len(t, attachments, 6)

	perID := map[string][]models.EntityState{}
	for _, a := range attachments {
		perID[a.MigrationID] = append(perID[a.MigrationID], a.State)
	}
	for id, states := range perID {
		assert.ElementsMatch(t, []models.EntityState{models.StateActive, models.StateInactive}, states, id)
	}

	second := active(t, store, course, models.KindAttachment, "a1")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Generation)

	// tags always point at whatever is active when they are written
	reading := active(t, store, course, models.KindContentTag, "m1_reading")
	assert.Equal(t, second.ID, reading.Target.ID)
}

func TestMergeSelectionFailsClosed(t *testing.T) {
	store := database.NewMemoryStore()
	course := uuid.New()
	spec, err := selection.Parse([]byte(`{
		"everything": "0",
		"all_quizzes": "1",
		"modules": {"m1": "1"},
		"files": {"a1": "1"}
	}`))
	require.NoError(t, err)

	report, err := NewEngine(store, OnErrorSkip, nil).MergeInto(context.Background(), course, sampleDocument(t), spec)
	require.NoError(t, err)

	counts, err := store.CountEntities(context.Background(), course, models.StateActive)
	require.NoError(t, err)
	assert.Equal(t, map[models.RecordKind]int{
		models.KindAttachment: 1,
		models.KindModule:     1,
		models.KindContentTag: 4,
	}, counts)
	// discuss and tool items lost their targets
	assert.Equal(t, 2, report.Skipped)

	_, err = store.FindActive(context.Background(), course, models.KindContentTag, "m1_tool")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestMergeUnresolvedMarkerFallsBack(t *testing.T) {
	store := database.NewMemoryStore()
	course := uuid.New()

	doc := models.NewCourseDocument()
	marker := models.FileRefMarker("missing")
	doc.DiscussionTopics = []models.DiscussionTopic{{
		MigrationID: "t1",
		Title:       "Intro",
		Body:        `<img src="` + marker + `">`,
		PendingRefs: []models.PendingReference{{Marker: marker, MigrationID: "missing", OriginalPath: "images/cat.png"}},
	}}

	report, err := NewEngine(store, OnErrorSkip, nil).Commit(context.Background(), course, uuid.New(), doc)
	require.NoError(t, err)

	topic := active(t, store, course, models.KindDiscussionTopic, "t1")
	assert.Equal(t, `<img src="images/cat.png">`, topic.Attributes["message"])
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "images/cat.png")
}

func TestMergeUsesAttachmentsFromEarlierImports(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, OnErrorSkip, nil)
	course := uuid.New()

	files := models.NewCourseDocument()
	files.Attachments = []models.Attachment{{MigrationID: "pic", DisplayName: "pic.png"}}
	_, err := engine.Commit(context.Background(), course, uuid.New(), files)
	require.NoError(t, err)

	marker := models.FileRefMarker("pic")
	topics := models.NewCourseDocument()
	topics.DiscussionTopics = []models.DiscussionTopic{{
		MigrationID: "t1",
		Body:        marker,
		PendingRefs: []models.PendingReference{{Marker: marker, MigrationID: "pic"}},
	}}
	report, err := engine.Commit(context.Background(), course, uuid.New(), topics)
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)

	pic := active(t, store, course, models.KindAttachment, "pic")
	topic := active(t, store, course, models.KindDiscussionTopic, "t1")
	assert.Equal(t, models.FilePreviewURL(course.String(), pic.ID.String()), topic.Attributes["message"])
}

func TestMergeSkipPolicyContinues(t *testing.T) {
	store := database.NewMemoryStore()
	store.FailOn = map[string]error{"a1": errors.New("connection reset")}
	course := uuid.New()

	report, err := NewEngine(store, OnErrorSkip, nil).MergeInto(context.Background(), course, sampleDocument(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts[models.KindAttachment])
	// a1 itself plus the reading item that pointed at it
	assert.Equal(t, 2, report.Skipped)
	assert.Contains(t, strings.Join(report.Warnings, "\n"), `"a1.html" could not be saved`)

	_, err = store.FindActive(context.Background(), course, models.KindContentTag, "m1_reading")
	assert.ErrorIs(t, err, database.ErrNotFound)
	active(t, store, course, models.KindModule, "m2")
}

func TestMergeAbortPolicyStops(t *testing.T) {
	store := database.NewMemoryStore()
	boom := errors.New("connection reset")
	store.FailOn = map[string]error{"dt1": boom}
	course := uuid.New()

	report, err := NewEngine(store, OnErrorAbort, nil).MergeInto(context.Background(), course, sampleDocument(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// what was written before the failure stays
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Counts[models.KindAttachment])
	counts, err := store.CountEntities(context.Background(), course, "")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.KindAttachment])
	assert.Equal(t, 1, counts[models.KindExternalTool])
	assert.Zero(t, counts[models.KindModule])
}

func TestMergeSameCourseConcurrently(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, OnErrorSkip, nil)
	course := uuid.New()
	doc := sampleDocument(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.MergeInto(context.Background(), course, doc, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all := list(t, store, course, models.EntityFilter{})
	activeCount := map[string]int{}
	for _, e := range all {
		if e.IsActive() {
			activeCount[string(e.Kind)+"/"+e.MigrationID]++
		}
	}
	assert.Len(t, all, 17*4)
	for key, n := range activeCount {
		assert.Equal(t, 1, n, key)
	}

	gens := map[int]bool{}
	for _, e := range list(t, store, course, models.EntityFilter{Kinds: []models.RecordKind{models.KindModule}}) {
		if e.MigrationID == "m1" {
			gens[e.Generation] = true
		}
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, gens)
}

func TestMergeDifferentCoursesInParallel(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, OnErrorSkip, nil)
	doc := sampleDocument(t)

	// holding one course's lock must not block another course
	release, err := engine.locks.acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := engine.MergeInto(ctx, uuid.New(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 17, report.Created)
}

func TestCourseLockWaitIsCancellable(t *testing.T) {
	engine := NewEngine(database.NewMemoryStore(), OnErrorSkip, nil)
	course := uuid.New()

	release, err := engine.locks.acquire(context.Background(), course)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = engine.Commit(ctx, course, uuid.New(), models.NewCourseDocument())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMergeModulePositionsSkipFailedModules(t *testing.T) {
	store := database.NewMemoryStore()
	store.FailOn = map[string]error{"m1": errors.New("connection reset")}
	course := uuid.New()

	report, err := NewEngine(store, OnErrorSkip, nil).MergeInto(context.Background(), course, sampleDocument(t), nil)
	require.NoError(t, err)

	// m1 plus its six items
	assert.Equal(t, 7, report.Skipped)
	misc := active(t, store, course, models.KindModule, parser.MiscModuleID)
	week2 := active(t, store, course, models.KindModule, "m2")
	assert.Equal(t, []int{1, 2}, []int{misc.Position, week2.Position})
}

func TestMergeRewritesEscapedMarkers(t *testing.T) {
	store := database.NewMemoryStore()
	course := uuid.New()

	found := models.FileRefMarker("res&1")
	missing := models.FileRefMarker("gone<1>")
	doc := models.NewCourseDocument()
	doc.Attachments = []models.Attachment{{MigrationID: "res&1", DisplayName: "pic.png"}}
	// attribute values come back html-escaped from the tokenizer
	doc.DiscussionTopics = []models.DiscussionTopic{{
		MigrationID: "t1",
		Title:       "Intro",
		Body:        `<img src="` + html.EscapeString(found) + `"><a href="` + html.EscapeString(missing) + `">x</a>`,
		PendingRefs: []models.PendingReference{
			{Marker: found, MigrationID: "res&1", OriginalPath: "pic.png"},
			{Marker: missing, MigrationID: "gone<1>", OriginalPath: "a&b.pdf"},
		},
	}}

	report, err := NewEngine(store, OnErrorSkip, nil).Commit(context.Background(), course, uuid.New(), doc)
	require.NoError(t, err)

	pic := active(t, store, course, models.KindAttachment, "res&1")
	topic := active(t, store, course, models.KindDiscussionTopic, "t1")
	assert.Equal(t,
		`<img src="`+models.FilePreviewURL(course.String(), pic.ID.String())+`"><a href="a&amp;b.pdf">x</a>`,
		topic.Attributes["message"])
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "a&b.pdf")
}

func TestCourseLocksAreReleased(t *testing.T) {
	engine := NewEngine(database.NewMemoryStore(), OnErrorSkip, nil)
	doc := sampleDocument(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		course := uuid.New()
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := engine.MergeInto(context.Background(), course, doc, nil)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	// a cancelled waiter gives its slot back too
	course := uuid.New()
	release, err := engine.locks.acquire(context.Background(), course)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.locks.acquire(ctx, course)
	require.ErrorIs(t, err, context.Canceled)
	release()

	engine.locks.mu.Lock()
	defer engine.locks.mu.Unlock()
	assert.Empty(t, engine.locks.slots)
}
