package domain

// SubmissionKind identifies a structured form.
type SubmissionKind int

const (
	// Inquiry is the contact/service inquiry form.
	Inquiry SubmissionKind = iota + 1
	// JobApplication is the job application form with a resume upload.
	JobApplication
)

// Wire actions for structured submissions.
const (
	ActionSubmitInquiry        = "submit_inquiry"
	ActionSubmitJobApplication = "submit_job_application"
)

// Form field names.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldSubject    = "subject"
	FieldMessage    = "message"
	FieldServiceID  = "service_id"
	FieldResumeFile = "resume_file"
)

// Action returns the wire action for the kind.
func (k SubmissionKind) Action() string {
	switch k {
	case Inquiry:
		return ActionSubmitInquiry
	case JobApplication:
		return ActionSubmitJobApplication
	default:
		return ""
	}
}

func (k SubmissionKind) String() string {
	switch k {
	case Inquiry:
		return "inquiry"
	case JobApplication:
		return "job_application"
	default:
		return "unknown"
	}
}

// SubmissionKindFromAction maps a wire action back to its kind.
func SubmissionKindFromAction(action string) (SubmissionKind, bool) {
	switch action {
	case ActionSubmitInquiry:
		return Inquiry, true
	case ActionSubmitJobApplication:
		return JobApplication, true
	default:
		return 0, false
	}
}

// AffordanceState is the state of a rendered form.
type AffordanceState int

const (
	// AffordanceOpen accepts a submission.
	AffordanceOpen AffordanceState = iota
	// AffordanceUploading has a resume upload in flight.
	AffordanceUploading
	// AffordanceSubmitted is terminal.
	AffordanceSubmitted
	// AffordanceFailed shows a retryable error.
	AffordanceFailed
)

func (s AffordanceState) String() string {
	switch s {
	case AffordanceOpen:
		return "open"
	case AffordanceUploading:
		return "uploading"
	case AffordanceSubmitted:
		return "submitted"
	case AffordanceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Affordance tracks one rendered form inside a session.
type Affordance struct {
	FormID          string
	Kind            SubmissionKind
	State           AffordanceState
	ResumeReference string
	Detail          string
}

// IsTerminal reports whether the form was already submitted.
func (a *Affordance) IsTerminal() bool {
	return a.State == AffordanceSubmitted
}
