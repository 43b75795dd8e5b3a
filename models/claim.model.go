package models

import (
	"gorm.io/gorm"
)

const (
	PaymentStatePending = "PENDING"
	PaymentStatePaid    = "PAID"
)

const (
	CourseKindCPD           = "CPD"
	CourseKindQualification = "QUALIFICATION"
)

// CertificateClaim is the read model of a student's paid certificate request.
// The claims subsystem owns and writes these rows; the pipeline only reads
// them and flips payment_state when the payable signal arrives.
type CertificateClaim struct {
	gorm.Model
	StudentID    uint   `json:"student_id" gorm:"index;not null"`
	CourseID     uint   `json:"course_id" gorm:"index;not null"`
	CourseKind   string `json:"course_kind" gorm:"default:'CPD'"` // CPD, QUALIFICATION
	DisplayName  string `json:"display_name" gorm:"not null"`     // name printed on the certificate
	StudentEmail string `json:"student_email"`
	CourseTitle  string `json:"course_title"`
	PaymentState string `json:"payment_state" gorm:"default:'PENDING'"` // PENDING, PAID
	IsDeleted    bool   `gorm:"default:false"`
}

// CourseUnit is one unit/topic line of a course transcript, ordered by Position
type CourseUnit struct {
	gorm.Model
	CourseID  uint   `json:"course_id" gorm:"index;not null"`
	Position  int    `json:"position" gorm:"not null"`
	Title     string `json:"title" gorm:"not null"`
	IsDeleted bool   `gorm:"default:false"`
}
