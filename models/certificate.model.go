package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CertStatusPending    = "PENDING"
	CertStatusGenerating = "GENERATING"
	CertStatusReady      = "READY"
	CertStatusFailed     = "FAILED"
	CertStatusDelivered  = "DELIVERED"
)

const (
	TemplateKindCertificate = "CERTIFICATE"
	TemplateKindTranscript  = "TRANSCRIPT"
)

// GeneratedCertificate tracks one claim's document-generation lifecycle and
// the resulting artifacts. At most one row per claim (unique claim_id); rows
// are never deleted, failed attempts bump AttemptCount.
type GeneratedCertificate struct {
	gorm.Model
	ClaimID uint `json:"claim_id" gorm:"uniqueIndex;not null"`

	// Assigned at most once, never recycled. Nullable so rows that failed
	// before allocation don't collide on the unique index.
	RegistrationNumber *string `json:"registration_number" gorm:"uniqueIndex"`

	Status string `json:"status" gorm:"default:'PENDING'"` // PENDING, GENERATING, READY, FAILED, DELIVERED

	CertificateSourcePath string `json:"certificate_source_path"`
	CertificateFilePath   string `json:"certificate_file_path"` // distributable (PDF)
	TranscriptSourcePath  string `json:"transcript_source_path"`
	TranscriptFilePath    string `json:"transcript_file_path"` // distributable (PDF)

	// Snapshot of every placeholder value used, kept for audit/reprint.
	// Written once, then immutable.
	RenderedFields datatypes.JSONMap `json:"rendered_fields"`

	AttemptCount int    `json:"attempt_count" gorm:"default:0"`
	LastError    string `json:"last_error"`

	GeneratedAt *time.Time `json:"generated_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// Template is a reusable document skeleton with placeholder tokens, scoped
// to a (kind, course kind) pair. At most one active row per pair; the
// activation operation atomically deactivates siblings.
type Template struct {
	gorm.Model
	Kind       string `json:"kind" gorm:"index;not null"`        // CERTIFICATE, TRANSCRIPT
	CourseKind string `json:"course_kind" gorm:"index;not null"` // CPD, QUALIFICATION
	SourcePath string `json:"source_path" gorm:"not null"`
	IsActive   bool   `json:"is_active" gorm:"default:false;index"`
	IsDeleted  bool   `gorm:"default:false"`
}

// RegistrationSequence stores the last value for named monotonic counters.
// A single row per issuing authority backs registration numbering.
type RegistrationSequence struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	LastValue uint64    `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RegistrationSequence) TableName() string { return "registration_sequences" }
