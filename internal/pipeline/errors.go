package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFileCombination indicates a submission mixes PDFs with images or carries several PDFs.
	ErrUnsupportedFileCombination = errors.New("unsupported file combination")
	// ErrConversionUnavailable indicates PDF rasterization is not installed or disabled.
	ErrConversionUnavailable = errors.New("pdf conversion unavailable")
	// ErrNoFilesUploaded indicates a submission has no stored files.
	ErrNoFilesUploaded = errors.New("no files uploaded")
	// ErrPageOutOfRange indicates a region references a page the submission does not have.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrPrerequisiteMissing indicates the previous stage has not completed.
	ErrPrerequisiteMissing = errors.New("prerequisite stage missing")
	// ErrUnknownProvider indicates no OCR provider or grader is registered under the requested name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderUnavailable indicates a registered provider cannot run in this environment.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNotImplemented indicates a registered provider deliberately has no implementation yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrValidation indicates invalid input data.
	ErrValidation = errors.New("validation failed")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionBusy indicates another stage holds the submission lock.
	ErrSubmissionBusy = errors.New("submission busy")
	// ErrExamBusy indicates another answer key build holds the exam lock.
	ErrExamBusy = errors.New("exam busy")
)

// StageError carries the structured context of a failed stage run. Answer key builds set
// ExamID and leave SubmissionID zero.
type StageError struct {
	Err          error
	Stage        Stage
	ExamID       uint
	SubmissionID uint
	QuestionID   uint
	PageNumber   int
	Detail       string
	Hint         string
}

func (e *StageError) Error() string {
	parts := make([]string, 0, 4)
	if e.ExamID != 0 {
		parts = append(parts, fmt.Sprintf("exam %d", e.ExamID))
	}
	if e.SubmissionID != 0 || e.ExamID == 0 {
		parts = append(parts, fmt.Sprintf("submission %d", e.SubmissionID))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage %s", e.Stage))
	}
	if e.QuestionID != 0 {
		parts = append(parts, fmt.Sprintf("question %d", e.QuestionID))
	}
	if e.PageNumber != 0 {
		parts = append(parts, fmt.Sprintf("page %d", e.PageNumber))
	}

	message := fmt.Sprintf("%s: %v", strings.Join(parts, ", "), e.Err)
	if e.Detail != "" {
		message += ": " + e.Detail
	}
	if e.Hint != "" {
		message += " (hint: " + e.Hint + ")"
	}
	return message
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Hinted wraps err so that StageError construction can pick up an install hint.
type Hinted struct {
	Err  error
	Hint string
}

func (h *Hinted) Error() string {
	if h.Hint == "" {
		return h.Err.Error()
	}
	return fmt.Sprintf("%v (hint: %s)", h.Err, h.Hint)
}

func (h *Hinted) Unwrap() error {
	return h.Err
}

// HintFor returns the first install hint found in err's chain.
func HintFor(err error) string {
	var hinted *Hinted
	if errors.As(err, &hinted) {
		return hinted.Hint
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Hint
	}
	return ""
}

// Reason maps an error to a short label used for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnsupportedFileCombination):
		return "unsupported_file_combination"
	case errors.Is(err, ErrConversionUnavailable):
		return "conversion_unavailable"
	case errors.Is(err, ErrNoFilesUploaded):
		return "no_files_uploaded"
	case errors.Is(err, ErrPageOutOfRange):
		return "page_out_of_range"
	case errors.Is(err, ErrPrerequisiteMissing):
		return "prerequisite_missing"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSubmissionNotFound):
		return "not_found"
	case errors.Is(err, ErrSubmissionBusy), errors.Is(err, ErrExamBusy):
		return "busy"
	default:
		return "internal"
	}
}
