package constants

// JobStatus is the canonical status for job records.
type JobStatus string

// Stable values (store these exact strings in DB and API payloads).
const (
	JobStatusReceived      JobStatus = "received"        // accepted, not yet started
	JobStatusOCRInProgress JobStatus = "ocr_in_progress" // stage 1 running
	JobStatusOCRDone       JobStatus = "ocr_done"        // stage 1 completed (text extracted)
	JobStatusAIInProgress  JobStatus = "ai_in_progress"  // stage 2 running
	JobStatusReady         JobStatus = "ready"           // terminal success
	JobStatusFailed        JobStatus = "failed"          // terminal failure
)

// IsTerminal reports whether no further pipeline mutation may occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// Source tags where the submitted image came from. Informational only.
type Source string

const (
	SourceShare  Source = "share"
	SourcePicker Source = "picker"
)

// NormalizeSource maps unknown provenance tags to picker.
func NormalizeSource(input string) Source {
	if Source(input) == SourceShare {
		return SourceShare
	}
	return SourcePicker
}
