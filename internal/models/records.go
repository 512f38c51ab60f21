package models

// RecordKind identifies which kind of importable entity a record describes
type RecordKind string

const (
	KindModule             RecordKind = "module"
	KindContentTag         RecordKind = "content_tag"
	KindAttachment         RecordKind = "attachment"
	KindDiscussionTopic    RecordKind = "discussion_topic"
	KindQuiz               RecordKind = "quiz"
	KindQuestionBank       RecordKind = "question_bank"
	KindAssessmentQuestion RecordKind = "assessment_question"
	KindExternalTool       RecordKind = "external_tool"
	KindAssignment         RecordKind = "assignment"
)

// AllKinds lists every record kind in merge order
var AllKinds = []RecordKind{
	KindAttachment,
	KindQuestionBank,
	KindAssessmentQuestion,
	KindQuiz,
	KindExternalTool,
	KindDiscussionTopic,
	KindAssignment,
	KindModule,
	KindContentTag,
}

// Valid reports whether k is one of the known kinds
func (k RecordKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Record is implemented by every normalized record handed from conversion to merge
type Record interface {
	GetMigrationID() string
	Kind() RecordKind
}

// Ref points at another record by migration id. It's the unresolved form of a
// ContentRef and only lives between conversion and merge.
type Ref struct {
	Kind        RecordKind `json:"kind"`
	MigrationID string     `json:"migration_id"`
}

// PendingReference marks a spot in an HTML body that must be replaced with a
// file URL once the attachment has a persistent id
type PendingReference struct {
	Marker       string `json:"marker"`
	MigrationID  string `json:"migration_id"`
	OriginalPath string `json:"original_path"`
}

// Module is one entry of the course outline
type Module struct {
	MigrationID string       `json:"migration_id"`
	Title       string       `json:"title"`
	Items       []ContentTag `json:"items"`
}

func (m *Module) GetMigrationID() string { return m.MigrationID }
func (m *Module) Kind() RecordKind       { return KindModule }

// ContentTag is a module's ordered reference to another entity. A tag with
// neither Target nor URL is a title-only sub header.
type ContentTag struct {
	MigrationID       string `json:"migration_id"`
	ModuleMigrationID string `json:"module_migration_id"`
	Title             string `json:"title"`
	Indent            int    `json:"indent"`
	Target            *Ref   `json:"target,omitempty"`
	URL               string `json:"url,omitempty"` // external links only
}

func (t *ContentTag) GetMigrationID() string { return t.MigrationID }
func (t *ContentTag) Kind() RecordKind       { return KindContentTag }

// TitleOnly is true for sub headers and items whose resource could not be found
func (t *ContentTag) TitleOnly() bool {
	return t.Target == nil && t.URL == ""
}

// Attachment is a file shipped inside the cartridge
type Attachment struct {
	MigrationID string `json:"migration_id"`
	Path        string `json:"path"` // forward-slash path relative to the package root
	DisplayName string `json:"display_name"`
	Folder      string `json:"folder,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ResourceID  string `json:"resource_id,omitempty"`
}

func (a *Attachment) GetMigrationID() string { return a.MigrationID }
func (a *Attachment) Kind() RecordKind       { return KindAttachment }

// DiscussionTopic holds a topic whose body may embed pending file references
type DiscussionTopic struct {
	MigrationID   string             `json:"migration_id"`
	Title         string             `json:"title"`
	Body          string             `json:"body"`
	TopicType     string             `json:"topic_type"`
	AttachmentRef *Ref               `json:"attachment,omitempty"`
	PendingRefs   []PendingReference `json:"pending_references,omitempty"`
}

func (d *DiscussionTopic) GetMigrationID() string { return d.MigrationID }
func (d *DiscussionTopic) Kind() RecordKind       { return KindDiscussionTopic }

// VendorExtension is one platform-specific block of an external tool
type VendorExtension struct {
	Platform     string            `json:"platform"`
	CustomFields map[string]string `json:"custom_fields"`
}

// ExternalTool is an LTI tool configuration
type ExternalTool struct {
	MigrationID      string            `json:"migration_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	URL              string            `json:"url,omitempty"`
	Domain           string            `json:"domain,omitempty"`
	PrivacyLevel     string            `json:"privacy_level"`
	CustomFields     map[string]string `json:"custom_fields"`
	VendorExtensions []VendorExtension `json:"vendor_extensions"`
	ConsumerKey      string            `json:"consumer_key,omitempty"`
	SharedSecret     string            `json:"shared_secret,omitempty"`
}

func (e *ExternalTool) GetMigrationID() string { return e.MigrationID }
func (e *ExternalTool) Kind() RecordKind       { return KindExternalTool }

// HasSecurityParameters reports whether both LTI credentials were shipped inline
func (e *ExternalTool) HasSecurityParameters() bool {
	return e.ConsumerKey != "" && e.SharedSecret != ""
}

// Assignment is emitted for resources flagged with intendeduse="assignment"
type Assignment struct {
	MigrationID     string             `json:"migration_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	SubmissionTypes []string           `json:"submission_types"`
	Target          *Ref               `json:"target,omitempty"`
	PendingRefs     []PendingReference `json:"pending_references,omitempty"`
}

func (a *Assignment) GetMigrationID() string { return a.MigrationID }
func (a *Assignment) Kind() RecordKind       { return KindAssignment }

// Quiz comes out of the external assessment converter
type Quiz struct {
	MigrationID  string   `json:"migration_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	QuizType     string   `json:"quiz_type,omitempty"`
	QuestionRefs []string `json:"question_migration_ids,omitempty"`
}

func (q *Quiz) GetMigrationID() string { return q.MigrationID }
func (q *Quiz) Kind() RecordKind       { return KindQuiz }

// QuestionBank groups assessment questions
type QuestionBank struct {
	MigrationID string `json:"migration_id"`
	Title       string `json:"title"`
}

func (b *QuestionBank) GetMigrationID() string { return b.MigrationID }
func (b *QuestionBank) Kind() RecordKind       { return KindQuestionBank }

// AssessmentQuestion belongs to a question bank
type AssessmentQuestion struct {
	MigrationID    string  `json:"migration_id"`
	Title          string  `json:"question_name"`
	QuestionType   string  `json:"question_type"`
	Text           string  `json:"question_text"`
	PointsPossible float64 `json:"points_possible"`
	BankRef        string  `json:"question_bank_migration_id,omitempty"`
}

func (q *AssessmentQuestion) GetMigrationID() string { return q.MigrationID }
func (q *AssessmentQuestion) Kind() RecordKind       { return KindAssessmentQuestion }

const fileRefPrefix = "$CC_FILE_REF$/"

// FileRefMarker is the placeholder written into HTML bodies during conversion.
// The trailing "$" keeps "a1" from matching inside "a10".
func FileRefMarker(migrationID string) string {
	return fileRefPrefix + migrationID + "$"
}

// FilePreviewURL is what a resolved marker becomes
func FilePreviewURL(courseID, attachmentID string) string {
	return "/courses/" + courseID + "/files/" + attachmentID + "/preview"
}
