package pipeline

import "errors"

// Error taxonomy of the generation pipeline. Stage errors wrap one of these
// sentinels so callers can branch with errors.Is.
var (
	// ErrClaimNotFound means the referenced claim does not exist or is deleted.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimNotPayable means the claim's payment has not completed.
	ErrClaimNotPayable = errors.New("claim payment not completed")

	// ErrTemplateNotFound means no active template exists for the
	// (kind, course kind) pair. Fatal before any number is allocated.
	ErrTemplateNotFound = errors.New("no active template for kind and course kind")

	// ErrTooManyUnits means the course has more units than the transcript
	// template has slots. Rejected before allocation.
	ErrTooManyUnits = errors.New("course has more units than transcript slots")

	// ErrRegistrationAllocation means the atomic sequence increment failed.
	ErrRegistrationAllocation = errors.New("registration number allocation failed")

	// ErrConversionTimeout means the converter process exceeded its deadline.
	ErrConversionTimeout = errors.New("document conversion timed out")

	// ErrConversionProcess means the converter exited non-zero or produced
	// a missing/undersized output file.
	ErrConversionProcess = errors.New("document conversion failed")

	// ErrArtifactPersist means the artifact store could not durably write.
	ErrArtifactPersist = errors.New("artifact persist failed")

	// ErrNotReady means delivery was requested for a certificate that is
	// not in READY state.
	ErrNotReady = errors.New("certificate is not ready for delivery")
)
