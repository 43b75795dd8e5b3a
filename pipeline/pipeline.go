package pipeline

import (
	"certgen/models"
	"certgen/utils"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pipeline drives a claim from payable to a delivered pair of documents.
// All state transitions are single conditional updates against the durable
// store, so any number of pipeline instances (in-process or across worker
// processes) can race safely.
type Pipeline struct {
	DB          *gorm.DB
	Store       Store
	Converter   *Converter
	MaxAttempts int
}

// New wires a pipeline over the given database, artifact store and converter.
func New(db *gorm.DB, store Store, converter *Converter, maxAttempts int) *Pipeline {
	return &Pipeline{DB: db, Store: store, Converter: converter, MaxAttempts: maxAttempts}
}

// Generate runs the full generation pass for one claim. Idempotent: an
// existing READY, DELIVERED or in-flight GENERATING row is returned
// unchanged; a FAILED row re-enters GENERATING and only the missing
// documents are regenerated, reusing the already-allocated registration
// number. Exactly one caller wins the claim transition; losers get the
// current row back with no error.
func (p *Pipeline) Generate(ctx context.Context, claimID uint) (*models.GeneratedCertificate, error) {
	var claim models.CertificateClaim
	if err := p.DB.Where("id = ? AND is_deleted = ?", claimID, false).First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrClaimNotFound, claimID)
		}
		return nil, err
	}
	if claim.PaymentState != models.PaymentStatePaid {
		return nil, fmt.Errorf("%w: claim %d is %s", ErrClaimNotPayable, claimID, claim.PaymentState)
	}

	cert, err := p.ensureRow(claimID)
	if err != nil {
		return nil, err
	}

	switch cert.Status {
	case models.CertStatusReady, models.CertStatusDelivered, models.CertStatusGenerating:
		// Duplicate generation is a successful idempotent return.
		return cert, nil
	}

	// Claim the job: only one worker wins PENDING/FAILED -> GENERATING.
	res := p.DB.Model(&models.GeneratedCertificate{}).
		Where("id = ? AND status IN ?", cert.ID, []string{models.CertStatusPending, models.CertStatusFailed}).
		Updates(map[string]interface{}{
			"status":        models.CertStatusGenerating,
			"attempt_count": gorm.Expr("attempt_count + ?", 1),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race; return whatever state the winner left.
		p.DB.First(cert, cert.ID)
		return cert, nil
	}
	cert.Status = models.CertStatusGenerating
	cert.AttemptCount++

	defer func() {
		if r := recover(); r != nil {
			p.markFailed(cert, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	if err := p.run(ctx, cert, &claim); err != nil {
		p.markFailed(cert, err.Error())
		go utils.NotifyClaimStatus(claim.ID, cert.Status, registrationNumber(cert))
		return cert, err
	}

	go utils.NotifyClaimStatus(claim.ID, cert.Status, registrationNumber(cert))
	return cert, nil
}

// Deliver performs the READY -> DELIVERED transition. Idempotent: delivering
// an already-delivered certificate returns the existing row unchanged.
func (p *Pipeline) Deliver(certificateID uint) (*models.GeneratedCertificate, error) {
	var cert models.GeneratedCertificate
	if err := p.DB.First(&cert, certificateID).Error; err != nil {
		return nil, err
	}

	if cert.Status == models.CertStatusDelivered {
		return &cert, nil
	}

	now := time.Now()
	res := p.DB.Model(&models.GeneratedCertificate{}).
		Where("id = ? AND status = ?", cert.ID, models.CertStatusReady).
		Updates(map[string]interface{}{
			"status":       models.CertStatusDelivered,
			"delivered_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	if err := p.DB.First(&cert, certificateID).Error; err != nil {
		return nil, err
	}
	if cert.Status != models.CertStatusDelivered {
		return &cert, fmt.Errorf("%w: status %s", ErrNotReady, cert.Status)
	}

	go utils.NotifyClaimStatus(cert.ClaimID, cert.Status, registrationNumber(&cert))
	return &cert, nil
}

// ensureRow creates the claim's GeneratedCertificate row if missing. The
// unique index on claim_id makes concurrent creates collapse to one row.
func (p *Pipeline) ensureRow(claimID uint) (*models.GeneratedCertificate, error) {
	row := models.GeneratedCertificate{ClaimID: claimID, Status: models.CertStatusPending}
	if err := p.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return nil, err
	}

	var cert models.GeneratedCertificate
	if err := p.DB.Where("claim_id = ?", claimID).First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// run executes the pipeline stages for a row already in GENERATING.
func (p *Pipeline) run(ctx context.Context, cert *models.GeneratedCertificate, claim *models.CertificateClaim) error {
	// Validation stage: both templates must resolve and the unit list must
	// fit the transcript before any registration number is burned.
	_, certTpl, err := LoadActiveTemplate(p.DB, models.TemplateKindCertificate, claim.CourseKind)
	if err != nil {
		return err
	}
	_, transTpl, err := LoadActiveTemplate(p.DB, models.TemplateKindTranscript, claim.CourseKind)
	if err != nil {
		return err
	}

	var units []models.CourseUnit
	if err := p.DB.Where("course_id = ? AND is_deleted = ?", claim.CourseID, false).
		Order("position asc").Find(&units).Error; err != nil {
		return err
	}
	if len(units) > TranscriptUnitSlots {
		return fmt.Errorf("%w: %d units, %d slots", ErrTooManyUnits, len(units), TranscriptUnitSlots)
	}

	// Lazy allocation, at most once per claim. Persisted immediately so a
	// later crash or failure never re-allocates.
	if cert.RegistrationNumber == nil {
		number, err := AllocateRegistrationNumber(p.DB)
		if err != nil {
			return err
		}
		if err := p.DB.Model(cert).Update("registration_number", number).Error; err != nil {
			return err
		}
		cert.RegistrationNumber = &number
	}
	regNo := *cert.RegistrationNumber

	// The audit snapshot holds every placeholder value used and is written
	// once, on the first attempt; retries render from it, so a document
	// regenerated days later still carries the original issue date and
	// matches whatever was already published.
	var fields map[string]string
	if len(cert.RenderedFields) == 0 {
		fields, err = BuildTranscriptFields(claim, units, regNo, time.Now())
		if err != nil {
			return err
		}
		snapshot := datatypes.JSONMap{}
		for k, v := range fields {
			snapshot[k] = v
		}
		if err := p.DB.Model(cert).Update("rendered_fields", snapshot).Error; err != nil {
			return err
		}
		cert.RenderedFields = snapshot
	} else {
		fields = snapshotFields(cert.RenderedFields)
	}

	// The two documents are independent; one may succeed while the other
	// fails, and a retry only redoes the missing one.
	var certErr, transErr error
	if cert.CertificateFilePath == "" {
		certErr = p.produceDocument(ctx, cert, certTpl, fields,
			ArtifactCertificateSource, ArtifactCertificateFinal,
			"certificate_source_path", "certificate_file_path",
			&cert.CertificateSourcePath, &cert.CertificateFilePath)
	}
	if cert.TranscriptFilePath == "" {
		transErr = p.produceDocument(ctx, cert, transTpl, fields,
			ArtifactTranscriptSource, ArtifactTranscriptFinal,
			"transcript_source_path", "transcript_file_path",
			&cert.TranscriptSourcePath, &cert.TranscriptFilePath)
	}

	if certErr != nil || transErr != nil {
		return combineDocumentErrors(certErr, transErr)
	}

	// Finish: READY only when both distributables are recorded.
	now := time.Now()
	res := p.DB.Model(&models.GeneratedCertificate{}).
		Where("id = ? AND status = ?", cert.ID, models.CertStatusGenerating).
		Where("certificate_file_path <> '' AND transcript_file_path <> ''").
		Updates(map[string]interface{}{
			"status":       models.CertStatusReady,
			"generated_at": now,
			"last_error":   "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ready transition refused for certificate %d", cert.ID)
	}

	cert.Status = models.CertStatusReady
	cert.GeneratedAt = &now
	cert.LastError = ""
	log.Printf("Certificate %s generated for claim %d", regNo, claim.ID)
	return nil
}

// produceDocument renders one document, records its source artifact, then
// converts and records the distributable. Each locator is persisted on the
// row as soon as it exists, so a crash mid-way never loses finished work.
func (p *Pipeline) produceDocument(ctx context.Context, cert *models.GeneratedCertificate,
	tpl []byte, fields map[string]string,
	sourceKind, finalKind, sourceColumn, finalColumn string,
	sourceField, finalField *string) error {

	rendered := RenderTemplate(tpl, fields)

	sourceLoc, err := p.Store.PersistBytes(sourceKind, ".html", rendered)
	if err != nil {
		return err
	}
	if err := p.DB.Model(cert).Update(sourceColumn, sourceLoc).Error; err != nil {
		return err
	}
	*sourceField = sourceLoc

	pdfPath, err := p.Converter.Convert(ctx, sourceLoc)
	if err != nil {
		return err
	}
	defer os.Remove(pdfPath)

	finalLoc, err := p.Store.Persist(finalKind, pdfPath)
	if err != nil {
		return err
	}
	if err := p.DB.Model(cert).Update(finalColumn, finalLoc).Error; err != nil {
		return err
	}
	*finalField = finalLoc

	return nil
}

// markFailed moves a GENERATING row to FAILED with the error recorded.
// Locators gathered before the failure stay on the row.
func (p *Pipeline) markFailed(cert *models.GeneratedCertificate, cause string) {
	res := p.DB.Model(&models.GeneratedCertificate{}).
		Where("id = ? AND status = ?", cert.ID, models.CertStatusGenerating).
		Updates(map[string]interface{}{
			"status":     models.CertStatusFailed,
			"last_error": cause,
		})
	if res.Error != nil {
		log.Printf("Failed to record generation failure for certificate %d: %v", cert.ID, res.Error)
		return
	}
	cert.Status = models.CertStatusFailed
	cert.LastError = cause
}

// combineDocumentErrors wraps per-document failures so the sentinels stay
// reachable via errors.Is.
func combineDocumentErrors(certErr, transErr error) error {
	if certErr != nil && transErr == nil {
		return fmt.Errorf("certificate: %w", certErr)
	}
	if transErr != nil && certErr == nil {
		return fmt.Errorf("transcript: %w", transErr)
	}
	return fmt.Errorf("certificate: %w; transcript: %w", certErr, transErr)
}

// snapshotFields lowers a stored rendered_fields document back to the
// renderer's field map.
func snapshotFields(snapshot datatypes.JSONMap) map[string]string {
	fields := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return fields
}

func registrationNumber(cert *models.GeneratedCertificate) string {
	if cert.RegistrationNumber == nil {
		return ""
	}
	return *cert.RegistrationNumber
}
