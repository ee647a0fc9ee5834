package domain

import (
	"encoding"
	"time"
)

type LifecycleState string

const (
	StateIdle       LifecycleState = "IDLE"
	StateSubmitting LifecycleState = "SUBMITTING"
	StateAwaiting   LifecycleState = "AWAITING"
	StateSucceeded  LifecycleState = "SUCCEEDED"
	StateFailed     LifecycleState = "FAILED"
)

// Form field names of the generation service contract.
const (
	FieldTextContent     = "text_content"
	FieldPersonality     = "personality"
	FieldGoogleAPIKey    = "google_api_key"
	FieldOpenAIAPIKey    = "openai_api_key"
	FieldOutputPath      = "output_path"
	FieldGoogleModel     = "google_model"
	FieldGoogleEditModel = "google_edit_model"
	FieldOpenAIModel     = "openai_model"
	FieldFiles           = "files"
)

// Attachment is one reference file sent alongside the text content.
type Attachment struct {
	Name string
	Data []byte
}

// SubmissionRequest is an immutable snapshot of user input taken at
// submit time: scalar form fields plus an ordered list of attachments.
type SubmissionRequest struct {
	fields map[string]string
	files  []Attachment
}

// NewSubmissionRequest copies its inputs so later mutation of the
// caller's map or slice cannot alter an in-flight submission.
func NewSubmissionRequest(fields map[string]string, files []Attachment) SubmissionRequest {
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	fs := make([]Attachment, len(files))
	copy(fs, files)
	return SubmissionRequest{fields: f, files: fs}
}

func (r SubmissionRequest) Field(name string) string { return r.fields[name] }

// FieldNames returns the names of all set fields in unspecified order.
func (r SubmissionRequest) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	return names
}

// Files returns the attachments in submission order.
func (r SubmissionRequest) Files() []Attachment {
	out := make([]Attachment, len(r.files))
	copy(out, r.files)
	return out
}

type ProgressEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

var (
	_ encoding.TextMarshaler = LifecycleState("")
)

func (s LifecycleState) MarshalText() ([]byte, error) { return []byte(string(s)), nil }

func (s LifecycleState) String() string { return string(s) }

// Terminal reports whether no further transitions occur for this state.
func (s LifecycleState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
