package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a frame is sent without an open transport.
	ErrNotConnected = errors.New("transport not connected")
	// ErrSessionNotActive is returned for actions while the session is idle or expired.
	ErrSessionNotActive = errors.New("session not active")
	// ErrUploadFailed is returned when the resume upload did not succeed.
	ErrUploadFailed = errors.New("resume upload failed")
	// ErrTransportClosedDirty marks a transport that died without a clean close.
	ErrTransportClosedDirty = errors.New("transport closed uncleanly")

	// ErrNoFileSelected is an upload failure caused by a missing resume.
	ErrNoFileSelected = fmt.Errorf("%w: no file selected", ErrUploadFailed)
	// ErrAlreadySubmitted is returned when a terminal form is submitted again.
	ErrAlreadySubmitted = errors.New("form already submitted")
	// ErrSubmissionInFlight is returned while a form's upload is still running.
	ErrSubmissionInFlight = errors.New("submission already in progress")
	// ErrInvalidSubmission is returned when required form fields are missing.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrUnknownSuggestion is returned for a suggestion that is not on screen.
	ErrUnknownSuggestion = errors.New("suggestion not available")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrStopped is returned when the orchestrator loop is no longer running.
	ErrStopped = errors.New("orchestrator stopped")
)

// ErrorKind classifies errors surfaced to the UI.
type ErrorKind int

const (
	// ErrorKindConnection is a transport problem.
	ErrorKindConnection ErrorKind = iota + 1
	// ErrorKindUpload is a failed resume upload.
	ErrorKindUpload
	// ErrorKindSubmission is a failed structured submission.
	ErrorKindSubmission
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnection:
		return "connection"
	case ErrorKindUpload:
		return "upload"
	case ErrorKindSubmission:
		return "submission"
	default:
		return "unknown"
	}
}
