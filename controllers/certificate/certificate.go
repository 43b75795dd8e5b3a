package controllers

import (
	"certgen/config"
	"certgen/database"
	"certgen/middleware"
	"certgen/models"
	"certgen/pipeline"
	"certgen/utils"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Pipe is the generation pipeline shared by all handlers, wired in main.
var Pipe *pipeline.Pipeline

// InitPipeline stores the pipeline instance used by the HTTP layer.
func InitPipeline(p *pipeline.Pipeline) {
	Pipe = p
}

// MarkClaimPayable is the signal from the claims subsystem that a claim's
// payment completed. It flips the payment state and kicks generation in the
// background; the cron worker covers the case where this process dies first.
func MarkClaimPayable(c *fiber.Ctx) error {
	claimID := c.Locals("claimID").(int)

	var claim models.CertificateClaim
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", claimID, false).First(&claim).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Claim not found!", nil)
	}

	if claim.PaymentState != models.PaymentStatePaid {
		claim.PaymentState = models.PaymentStatePaid
		if err := database.Database.Db.Save(&claim).Error; err != nil {
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update claim!", nil)
		}
	}

	go func(id uint) {
		if _, err := Pipe.Generate(context.Background(), id); err != nil {
			log.Printf("Background generation for claim %d failed: %v", id, err)
		}
	}(claim.ID)

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Claim marked payable, generation scheduled!", claim)
}

// TriggerGeneration runs the pipeline synchronously for one claim.
// Idempotent: an existing READY/DELIVERED row is returned unchanged.
func TriggerGeneration(c *fiber.Ctx) error {
	claimID := c.Locals("claimID").(int)

	cert, err := Pipe.Generate(c.Context(), uint(claimID))
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrClaimNotFound):
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Claim not found!", nil)
		case errors.Is(err, pipeline.ErrClaimNotPayable):
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Claim payment not completed!", nil)
		case errors.Is(err, pipeline.ErrTemplateNotFound):
			return middleware.JsonResponse(c, fiber.StatusUnprocessableEntity, false, "No active template for this course kind!", cert)
		case errors.Is(err, pipeline.ErrTooManyUnits):
			return middleware.JsonResponse(c, fiber.StatusUnprocessableEntity, false, "Course has more units than the transcript template supports!", cert)
		default:
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Certificate generation failed!", cert)
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate generation completed!", cert)
}

// ListGenerated lists generated certificates with an optional status filter
func ListGenerated(c *fiber.Ctx) error {
	status := c.Locals("statusFilter").(string)
	page := c.Locals("page").(int)
	limit := c.Locals("limit").(int)

	query := database.Database.Db.Model(&models.GeneratedCertificate{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch certificates!", nil)
	}

	var certificates []models.GeneratedCertificate
	if err := query.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&certificates).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch certificates!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificates fetched successfully!", fiber.Map{
		"certificates": certificates,
		"pagination": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// DeliverCertificate performs the READY -> DELIVERED transition. Idempotent;
// delivering an already-delivered certificate returns the existing row.
func DeliverCertificate(c *fiber.Ctx) error {
	certificateID := c.Locals("certificateID").(int)

	cert, err := Pipe.Deliver(uint(certificateID))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotReady) {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Certificate is not ready for delivery!", cert)
		}
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found!", nil)
	}

	// Notify the student asynchronously
	var claim models.CertificateClaim
	if err := database.Database.Db.First(&claim, cert.ClaimID).Error; err == nil && claim.StudentEmail != "" {
		downloadURL := fmt.Sprintf("%s/certificate/download/%s/certificate",
			config.AppConfig.PublicBaseURL, *cert.RegistrationNumber)
		go utils.SendCertificateDeliveredEmail(claim.StudentEmail, claim.DisplayName, claim.CourseTitle,
			*cert.RegistrationNumber, downloadURL)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate delivered successfully!", cert)
}

// DownloadByRegistrationNumber streams a delivered document to the public.
// Anything not delivered yet is indistinguishable from an unknown number.
func DownloadByRegistrationNumber(c *fiber.Ctx) error {
	registrationNumber := c.Locals("registrationNumber").(string)
	kind := c.Locals("documentKind").(string)

	var cert models.GeneratedCertificate
	if err := database.Database.Db.Where("registration_number = ?", registrationNumber).First(&cert).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found!", nil)
	}

	if cert.Status != models.CertStatusDelivered {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found!", nil)
	}

	locator := cert.CertificateFilePath
	if kind == "transcript" {
		locator = cert.TranscriptFilePath
	}
	if locator == "" {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found!", nil)
	}

	stream, err := Pipe.Store.Resolve(locator)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to read document!", nil)
	}

	c.Set("Content-Type", "application/pdf")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.pdf"`, registrationNumber, kind))
	return c.SendStream(stream)
}
