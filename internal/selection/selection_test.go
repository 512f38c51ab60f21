package selection

import (
	"testing"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *models.CourseDocument {
	doc := models.NewCourseDocument()
	doc.Attachments = []models.Attachment{
		{MigrationID: "f1", Folder: "web_resources/img"},
		{MigrationID: "f2", Folder: "web_resources/docs/week1"},
		{MigrationID: "f3", Folder: ""},
	}
	doc.DiscussionTopics = []models.DiscussionTopic{{MigrationID: "t1"}}
	doc.ExternalTools = []models.ExternalTool{{MigrationID: "lti1"}}
	doc.Assignments = []models.Assignment{{MigrationID: "as1"}}
	doc.Quizzes = []models.Quiz{{MigrationID: "q1"}}
	doc.QuestionBanks = []models.QuestionBank{{MigrationID: "b1"}}
	doc.AssessmentQuestions = []models.AssessmentQuestion{{MigrationID: "qq1"}}
	doc.Modules = []models.Module{
		{MigrationID: "m1", Items: []models.ContentTag{
			{MigrationID: "m1_a", ModuleMigrationID: "m1"},
			{MigrationID: "m1_b", ModuleMigrationID: "m1"},
		}},
		{MigrationID: "m2", Items: []models.ContentTag{
			{MigrationID: "m2_a", ModuleMigrationID: "m2"},
		}},
	}
	doc.Warnings = []string{"kept"}
	return doc
}

func ids(doc *models.CourseDocument) map[models.RecordKind][]string {
	out := map[models.RecordKind][]string{}
	for _, rec := range doc.Records() {
		out[rec.Kind()] = append(out[rec.Kind()], rec.GetMigrationID())
	}
	return out
}

func TestParseEmptyMeansFullImport(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		spec, err := Parse([]byte(in))
		require.NoError(t, err)
		assert.Nil(t, spec)
	}

	full := Apply(sampleDocument(), nil)
	assert.Equal(t, sampleDocument(), full)
}

func TestParseTruthyValues(t *testing.T) {
	spec, err := Parse([]byte(`{
		"all_files": "1",
		"all_topics": true,
		"all_quizzes": 1,
		"all_modules": "true",
		"all_assignments": "0",
		"all_external_tools": false,
		"shift_dates": "1"
	}`))
	require.NoError(t, err)

	assert.False(t, spec.Everything)
	assert.True(t, spec.Flags[KeyAllFiles])
	assert.True(t, spec.Flags[KeyAllTopics])
	assert.True(t, spec.Flags[KeyAllQuizzes])
	assert.True(t, spec.Flags[KeyAllModules])
	assert.False(t, spec.Flags[KeyAllAssignments])
	assert.False(t, spec.Flags[KeyAllExternalTools])
	assert.True(t, spec.Flag(KeyShiftDates))
}

func TestParseCopyWrapperAndSets(t *testing.T) {
	spec, err := Parse([]byte(`{"copy": {
		"everything": "0",
		"modules": {"m1": "1", "m2": "0"},
		"files": ["f3"],
		"folders": {"web_resources/docs": "1"}
	}}`))
	require.NoError(t, err)

	assert.True(t, spec.Selected(SetModules, "m1"))
	assert.False(t, spec.Selected(SetModules, "m2"))
	assert.True(t, spec.Selected(SetFiles, "f3"))
	assert.True(t, spec.Selected(SetFolders, "web_resources/docs"))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Parse([]byte(`{"modules": 5}`))
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestEverythingOverridesCategories(t *testing.T) {
	spec, err := Parse([]byte(`{"everything": "1", "all_files": "0"}`))
	require.NoError(t, err)

	assert.True(t, Included(&models.Attachment{MigrationID: "x"}, spec))
	assert.True(t, Included(&models.ContentTag{ModuleMigrationID: "anything"}, spec))
}

func TestSelectionFailsClosed(t *testing.T) {
	spec, err := Parse([]byte(`{
		"everything": "0",
		"all_quizzes": "1",
		"modules": {"m1": "1"},
		"files": {"f3": "1"}
	}`))
	require.NoError(t, err)

	got := ids(Apply(sampleDocument(), spec))

	assert.Equal(t, []string{"f3"}, got[models.KindAttachment])
	assert.Equal(t, []string{"q1"}, got[models.KindQuiz])
	assert.Equal(t, []string{"b1"}, got[models.KindQuestionBank])
	assert.Equal(t, []string{"qq1"}, got[models.KindAssessmentQuestion])
	assert.Equal(t, []string{"m1"}, got[models.KindModule])
	// tags come along with their module
	assert.Equal(t, []string{"m1_a", "m1_b"}, got[models.KindContentTag])

	assert.Empty(t, got[models.KindDiscussionTopic])
	assert.Empty(t, got[models.KindExternalTool])
	assert.Empty(t, got[models.KindAssignment])
}

func TestFolderSelectionMatchesSubfolders(t *testing.T) {
	spec, err := Parse([]byte(`{"folders": ["web_resources/docs/"]}`))
	require.NoError(t, err)

	got := ids(Apply(sampleDocument(), spec))
	assert.Equal(t, []string{"f2"}, got[models.KindAttachment])

	assert.False(t, Included(&models.Attachment{Folder: "web_resources/docsextra"}, spec))
}

func TestApplyKeepsWarningsAndDoesNotMutate(t *testing.T) {
	doc := sampleDocument()
	spec, err := Parse([]byte(`{"modules": ["m2"]}`))
	require.NoError(t, err)

	out := Apply(doc, spec)

	assert.Equal(t, []string{"kept"}, out.Warnings)
	require.Len(t, out.Modules, 1)
	assert.Len(t, doc.Modules[0].Items, 2)
}

func TestUnknownKindIsExcluded(t *testing.T) {
	spec, err := Parse([]byte(`{"all_files": "1"}`))
	require.NoError(t, err)

	assert.False(t, Included(fakeRecord{}, spec))
	assert.True(t, Included(fakeRecord{}, nil))
}

type fakeRecord struct{}

func (fakeRecord) GetMigrationID() string  { return "x" }
func (fakeRecord) Kind() models.RecordKind { return "wiki_page" }
