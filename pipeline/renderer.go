package pipeline

import (
	"certgen/models"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"
)

// TranscriptUnitSlots is the number of unit lines a transcript template
// carries. Courses with more units are rejected before a registration
// number is allocated; a transcript that silently drops units would be
// worse than a loud failure.
const TranscriptUnitSlots = 12

// Placeholder tokens form a closed vocabulary; anything outside it passes
// through the renderer untouched.
const (
	TokenStudentName        = "student_name"
	TokenCourseTitle        = "course_title"
	TokenIssueDate          = "issue_date"
	TokenRegistrationNumber = "registration_number"
)

// LoadActiveTemplate finds the active template row for the pair and reads a
// snapshot of its bytes. A template swap after this point does not affect a
// generation already in flight.
func LoadActiveTemplate(db *gorm.DB, kind string, courseKind string) (*models.Template, []byte, error) {
	var tpl models.Template
	err := db.Where("kind = ? AND course_kind = ? AND is_active = ? AND is_deleted = ?",
		kind, courseKind, true, false).First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, kind, courseKind)
		}
		return nil, nil, err
	}

	raw, err := os.ReadFile(tpl.SourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unreadable source %s", ErrTemplateNotFound, tpl.SourcePath)
	}

	return &tpl, raw, nil
}

// RenderTemplate substitutes {{token}} placeholders with field values.
// Only supplied tokens are touched; every other byte of the template is
// reproduced as-is.
func RenderTemplate(tpl []byte, fields map[string]string) []byte {
	out := string(tpl)
	for token, value := range fields {
		out = strings.ReplaceAll(out, "{{"+token+"}}", value)
	}
	return []byte(out)
}

// BuildCertificateFields assembles the placeholder values for a certificate.
func BuildCertificateFields(claim *models.CertificateClaim, registrationNumber string, issuedAt time.Time) map[string]string {
	return map[string]string{
		TokenStudentName:        claim.DisplayName,
		TokenCourseTitle:        claim.CourseTitle,
		TokenIssueDate:          issuedAt.Format("2 January 2006"),
		TokenRegistrationNumber: registrationNumber,
	}
}

// BuildTranscriptFields assembles the placeholder values for a transcript,
// binding the ordered unit list to the template's fixed slots. Slots beyond
// the course's unit count render empty.
func BuildTranscriptFields(claim *models.CertificateClaim, units []models.CourseUnit, registrationNumber string, issuedAt time.Time) (map[string]string, error) {
	if len(units) > TranscriptUnitSlots {
		return nil, fmt.Errorf("%w: %d units, %d slots", ErrTooManyUnits, len(units), TranscriptUnitSlots)
	}

	fields := BuildCertificateFields(claim, registrationNumber, issuedAt)
	for i := 1; i <= TranscriptUnitSlots; i++ {
		fields[fmt.Sprintf("unit_%d", i)] = ""
	}
	for i, unit := range units {
		fields[fmt.Sprintf("unit_%d", i+1)] = unit.Title
	}

	return fields, nil
}
