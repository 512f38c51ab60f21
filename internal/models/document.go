package models

// CourseDocument is the intermediate result of converting one cartridge.
// Field names are stable across repeated conversions of the same archive.
type CourseDocument struct {
	Title               string               `json:"title,omitempty"`
	SchemaVersion       string               `json:"schema_version,omitempty"`
	Modules             []Module             `json:"modules"`
	Attachments         []Attachment         `json:"attachments"`
	DiscussionTopics    []DiscussionTopic    `json:"discussion_topics"`
	ExternalTools       []ExternalTool       `json:"external_tools"`
	Assignments         []Assignment         `json:"assignments"`
	Quizzes             []Quiz               `json:"assessments"`
	QuestionBanks       []QuestionBank       `json:"assessment_question_banks"`
	AssessmentQuestions []AssessmentQuestion `json:"assessment_questions"`
	Warnings            []string             `json:"warnings"`
}

// NewCourseDocument returns a document with every list non-nil so it
// serializes the same way whether or not a section is populated
func NewCourseDocument() *CourseDocument {
	return &CourseDocument{
		Modules:             []Module{},
		Attachments:         []Attachment{},
		DiscussionTopics:    []DiscussionTopic{},
		ExternalTools:       []ExternalTool{},
		Assignments:         []Assignment{},
		Quizzes:             []Quiz{},
		QuestionBanks:       []QuestionBank{},
		AssessmentQuestions: []AssessmentQuestion{},
		Warnings:            []string{},
	}
}

// AddWarning appends a non-fatal conversion problem
func (d *CourseDocument) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// Records returns every record in merge order: leaves first, modules and their
// content tags last
func (d *CourseDocument) Records() []Record {
	var out []Record
	for i := range d.Attachments {
		out = append(out, &d.Attachments[i])
	}
	for i := range d.QuestionBanks {
		out = append(out, &d.QuestionBanks[i])
	}
	for i := range d.AssessmentQuestions {
		out = append(out, &d.AssessmentQuestions[i])
	}
	for i := range d.Quizzes {
		out = append(out, &d.Quizzes[i])
	}
	for i := range d.ExternalTools {
		out = append(out, &d.ExternalTools[i])
	}
	for i := range d.DiscussionTopics {
		out = append(out, &d.DiscussionTopics[i])
	}
	for i := range d.Assignments {
		out = append(out, &d.Assignments[i])
	}
	for i := range d.Modules {
		out = append(out, &d.Modules[i])
		for j := range d.Modules[i].Items {
			out = append(out, &d.Modules[i].Items[j])
		}
	}
	return out
}

// Has reports whether the document carries a record of the given kind and id
func (d *CourseDocument) Has(kind RecordKind, migrationID string) bool {
	for _, rec := range d.Records() {
		if rec.Kind() == kind && rec.GetMigrationID() == migrationID {
			return true
		}
	}
	return false
}

// CountByKind tallies records per kind, handy for logging
func (d *CourseDocument) CountByKind() map[RecordKind]int {
	counts := make(map[RecordKind]int)
	for _, rec := range d.Records() {
		counts[rec.Kind()]++
	}
	return counts
}
