package tui

import (
	"strings"

	"github.com/ashureev/chatwidget/internal/domain"
)

// resumePathKey holds the local resume path while a job application form
// is filled in. It never reaches the bot.
const resumePathKey = "resume_path"

type formField struct {
	key      string
	label    string
	optional bool
}

var (
	inquiryForm = []formField{
		{key: domain.FieldName, label: "Name"},
		{key: domain.FieldEmail, label: "Email"},
		{key: domain.FieldPhone, label: "Phone"},
		{key: domain.FieldSubject, label: "Subject"},
		{key: domain.FieldMessage, label: "Message"},
		{key: domain.FieldServiceID, label: "Service ID (optional)", optional: true},
	}
	applicationForm = []formField{
		{key: domain.FieldName, label: "Name"},
		{key: domain.FieldEmail, label: "Email"},
		{key: domain.FieldPhone, label: "Phone"},
		{key: resumePathKey, label: "Resume path (.pdf or .docx)"},
	}
)

// formEntry walks the user through one form, a field at a time.
type formEntry struct {
	kind       domain.SubmissionKind
	formID     string
	fields     []formField
	step       int
	values     domain.Fields
	resumePath string
}

func newFormEntry(kind domain.SubmissionKind, formID string) *formEntry {
	fields := inquiryForm
	if kind == domain.JobApplication {
		fields = applicationForm
	}
	return &formEntry{kind: kind, formID: formID, fields: fields, values: domain.Fields{}}
}

func (f *formEntry) current() formField {
	return f.fields[f.step]
}

func (f *formEntry) done() bool {
	return f.step >= len(f.fields)
}

// fill stores the answer for the current field and advances. It returns
// false when a required field was left blank.
func (f *formEntry) fill(value string) bool {
	value = strings.TrimSpace(value)
	field := f.current()
	if value == "" && !field.optional {
		return false
	}
	switch {
	case field.key == resumePathKey:
		f.resumePath = value
	case value != "":
		f.values[field.key] = value
	}
	f.step++
	return true
}

func (f *formEntry) title() string {
	if f.kind == domain.JobApplication {
		return "Job application"
	}
	return "Inquiry"
}
