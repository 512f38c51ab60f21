// Package selection decides which converted records take part in a selective import.
package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
)

// ErrInvalidSpec is returned for selection documents that aren't a JSON object
var ErrInvalidSpec = errors.New("invalid selection spec")

// wholesale flags
const (
	KeyEverything          = "everything"
	KeyAllFiles            = "all_files"
	KeyAllModules          = "all_modules"
	KeyAllTopics           = "all_topics"
	KeyAllQuizzes          = "all_quizzes"
	KeyAllExternalTools    = "all_external_tools"
	KeyAllAssignments      = "all_assignments"
	KeyAllWikis            = "all_wikis"
	KeyAllAnnouncements    = "all_announcements"
	KeyAllRubrics          = "all_rubrics"
	KeyAllGroups           = "all_groups"
	KeyAllAssignmentGroups = "all_assignment_groups"
	KeyShiftDates          = "shift_dates"
)

// explicit id sets
const (
	SetModules             = "modules"
	SetFiles               = "files"
	SetFolders             = "folders"
	SetTopics              = "topics"
	SetQuizzes             = "quizzes"
	SetQuestionBanks       = "assessment_question_banks"
	SetAssessmentQuestions = "assessment_questions"
	SetExternalTools       = "external_tools"
	SetAssignments         = "assignments"
	SetTopicEntries        = "topic_entries"
)

var flagKeys = []string{
	KeyAllFiles, KeyAllModules, KeyAllTopics, KeyAllQuizzes, KeyAllExternalTools,
	KeyAllAssignments, KeyAllWikis, KeyAllAnnouncements, KeyAllRubrics, KeyAllGroups,
	KeyAllAssignmentGroups, KeyShiftDates,
}

var setKeys = []string{
	SetModules, SetFiles, SetFolders, SetTopics, SetQuizzes, SetQuestionBanks,
	SetAssessmentQuestions, SetExternalTools, SetAssignments, SetTopicEntries,
}

// category maps a record kind onto its wholesale flag and explicit set
type category struct {
	flag string
	set  string
}

var categories = map[models.RecordKind]category{
	models.KindAttachment:         {KeyAllFiles, SetFiles},
	models.KindDiscussionTopic:    {KeyAllTopics, SetTopics},
	models.KindQuiz:               {KeyAllQuizzes, SetQuizzes},
	models.KindQuestionBank:       {KeyAllQuizzes, SetQuestionBanks},
	models.KindAssessmentQuestion: {KeyAllQuizzes, SetAssessmentQuestions},
	models.KindExternalTool:       {KeyAllExternalTools, SetExternalTools},
	models.KindAssignment:         {KeyAllAssignments, SetAssignments},
	models.KindModule:             {KeyAllModules, SetModules},
}

// Spec is a parsed selection. A nil *Spec means a full import.
type Spec struct {
	Everything bool                       `json:"everything"`
	Flags      map[string]bool            `json:"flags"`
	Sets       map[string]map[string]bool `json:"sets"`
}

// Everything returns a spec that selects every record
func Everything() *Spec {
	return &Spec{Everything: true, Flags: map[string]bool{}, Sets: map[string]map[string]bool{}}
}

// Parse reads a selection document. Both the bare object and one wrapped in
// {"copy": {...}} are accepted. Empty input means no selection at all.
func Parse(data []byte) (*Spec, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if inner, ok := raw["copy"]; ok {
		raw = nil
		if err := json.Unmarshal(inner, &raw); err != nil {
			return nil, fmt.Errorf("%w: copy: %v", ErrInvalidSpec, err)
		}
	}

	spec := &Spec{Flags: map[string]bool{}, Sets: map[string]map[string]bool{}}
	if v, ok := raw[KeyEverything]; ok {
		spec.Everything = truthy(v)
	}
	for _, key := range flagKeys {
		if v, ok := raw[key]; ok {
			spec.Flags[key] = truthy(v)
		}
	}
	for _, key := range setKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		ids, err := idSet(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, key, err)
		}
		spec.Sets[key] = ids
	}
	return spec, nil
}

// Flag reports a wholesale flag, unknown keys are false
func (s *Spec) Flag(key string) bool {
	if s == nil {
		return true
	}
	return s.Everything || s.Flags[key]
}

// Selected reports whether id is in the named explicit set
func (s *Spec) Selected(set, id string) bool {
	if s == nil {
		return true
	}
	return s.Sets[set][id]
}

// Included decides whether one record makes it into the merge. Content tags
// follow their module; kinds without a category are excluded.
func Included(rec models.Record, s *Spec) bool {
	if s == nil || s.Everything {
		return true
	}

	switch r := rec.(type) {
	case *models.ContentTag:
		return moduleIncluded(r.ModuleMigrationID, s)
	case *models.Attachment:
		if s.Flags[KeyAllFiles] || s.Selected(SetFiles, r.MigrationID) {
			return true
		}
		return folderSelected(r.Folder, s)
	}

	cat, ok := categories[rec.Kind()]
	if !ok {
		return false
	}
	return s.Flags[cat.flag] || s.Selected(cat.set, rec.GetMigrationID())
}

func moduleIncluded(id string, s *Spec) bool {
	return s.Flags[KeyAllModules] || s.Selected(SetModules, id)
}

// folderSelected matches the attachment's folder or any parent of it
func folderSelected(folder string, s *Spec) bool {
	for sel := range s.Sets[SetFolders] {
		sel = strings.Trim(sel, "/")
		if sel == "" {
			continue
		}
		if folder == sel || strings.HasPrefix(folder, sel+"/") {
			return true
		}
	}
	return false
}

// Apply returns a copy of doc holding only the selected records. Warnings
// are carried over untouched.
func Apply(doc *models.CourseDocument, s *Spec) *models.CourseDocument {
	out := models.NewCourseDocument()
	out.Title = doc.Title
	out.SchemaVersion = doc.SchemaVersion
	out.Warnings = append(out.Warnings, doc.Warnings...)

	for i := range doc.Attachments {
		if Included(&doc.Attachments[i], s) {
			out.Attachments = append(out.Attachments, doc.Attachments[i])
		}
	}
	for i := range doc.QuestionBanks {
		if Included(&doc.QuestionBanks[i], s) {
			out.QuestionBanks = append(out.QuestionBanks, doc.QuestionBanks[i])
		}
	}
	for i := range doc.AssessmentQuestions {
		if Included(&doc.AssessmentQuestions[i], s) {
			out.AssessmentQuestions = append(out.AssessmentQuestions, doc.AssessmentQuestions[i])
		}
	}
	for i := range doc.Quizzes {
		if Included(&doc.Quizzes[i], s) {
			out.Quizzes = append(out.Quizzes, doc.Quizzes[i])
		}
	}
	for i := range doc.ExternalTools {
		if Included(&doc.ExternalTools[i], s) {
			out.ExternalTools = append(out.ExternalTools, doc.ExternalTools[i])
		}
	}
	for i := range doc.DiscussionTopics {
		if Included(&doc.DiscussionTopics[i], s) {
			out.DiscussionTopics = append(out.DiscussionTopics, doc.DiscussionTopics[i])
		}
	}
	for i := range doc.Assignments {
		if Included(&doc.Assignments[i], s) {
			out.Assignments = append(out.Assignments, doc.Assignments[i])
		}
	}
	for i := range doc.Modules {
		mod := doc.Modules[i]
		if !Included(&mod, s) {
			continue
		}
		items := make([]models.ContentTag, 0, len(mod.Items))
		for j := range mod.Items {
			if Included(&mod.Items[j], s) {
				items = append(items, mod.Items[j])
			}
		}
		mod.Items = items
		out.Modules = append(out.Modules, mod)
	}
	return out
}

// truthy accepts "1", "true", true and 1
func truthy(v json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n == 1
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return false
}

// idSet reads either {"id": "1", ...} or ["id", ...]
func idSet(v json.RawMessage) (map[string]bool, error) {
	ids := map[string]bool{}

	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		for _, id := range list {
			ids[id] = true
		}
		return ids, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, errors.New("expected an object or an array of ids")
	}
	for id, flag := range m {
		if truthy(flag) {
			ids[id] = true
		}
	}
	return ids, nil
}
