// Package errs holds the error kinds shared by the publish, download and
// fetch paths so callers can tell them apart with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is returned when an input is not a hex key, a nip-19
	// entity or a URL containing one.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoRelaysConfigured is returned when the resolved relay set for an
	// operation is empty.
	ErrNoRelaysConfigured = errors.New("no relays configured")
	// ErrNoActiveIdentity is returned for operations that need a signer when
	// none is configured.
	ErrNoActiveIdentity = errors.New("no active identity")
	// ErrSigningFailed wraps failures returned by the signer.
	ErrSigningFailed = errors.New("signing failed")
	// ErrUploadFailed means no media server accepted a blob.
	ErrUploadFailed = errors.New("upload failed")
	// ErrNotFound means an address resolved but no matching event could be
	// retrieved.
	ErrNotFound = errors.New("not found")
	// ErrNotMarkdown is returned when publishing a file that is not a .md
	// document.
	ErrNotMarkdown = errors.New("only markdown files can be published")
	// ErrEmptyDocument is returned when publishing a document with no body.
	ErrEmptyDocument = errors.New("the note is empty and cannot be published")
)

// Step names the stage of a publish operation an error occurred in.
type Step string

const (
	StepPrepare Step = "prepare"
	StepUpload  Step = "upload"
	StepBuild   Step = "build"
	StepSign    Step = "sign"
	StepPublish Step = "publish"
)

// StepError records which publish step failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// At wraps err as a StepError for step s. A nil err stays nil.
func At(s Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: s, Err: err}
}

// StepOf returns the step recorded in err, if any.
func StepOf(err error) (s Step, ok bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return
}
