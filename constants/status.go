package constants

// JobStatus is the canonical status for rows in export_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "PENDING"    // accepted, not yet picked up
	JobStatusProcessing JobStatus = "PROCESSING" // worker is streaming the artifact
	JobStatusCompleted  JobStatus = "COMPLETED"  // terminal success, artifact available
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure (includes cancellation)
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
