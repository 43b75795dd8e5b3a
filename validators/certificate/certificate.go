package certificateValidator

import (
	"certgen/middleware"
	"certgen/models"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClaimIDParam validates the :claim_id path parameter
func ClaimIDParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claimID, err := strconv.Atoi(c.Params("claim_id"))
		if err != nil || claimID < 1 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid claim id!", nil)
		}

		c.Locals("claimID", claimID)
		return c.Next()
	}
}

// CertificateIDParam validates the :id path parameter
func CertificateIDParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		certificateID, err := strconv.Atoi(c.Params("id"))
		if err != nil || certificateID < 1 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid certificate id!", nil)
		}

		c.Locals("certificateID", certificateID)
		return c.Next()
	}
}

// ListGenerated validates the status filter and pagination query params
func ListGenerated() fiber.Handler {
	validStatuses := map[string]bool{
		models.CertStatusPending:    true,
		models.CertStatusGenerating: true,
		models.CertStatusReady:      true,
		models.CertStatusFailed:     true,
		models.CertStatusDelivered:  true,
	}

	return func(c *fiber.Ctx) error {
		errors := make(map[string]string)

		status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
		if status != "" && !validStatuses[status] {
			errors["status"] = "Status must be one of PENDING, GENERATING, READY, FAILED, DELIVERED!"
		}

		page := c.QueryInt("page", 1)
		if page < 1 {
			errors["page"] = "Page must be greater than 0!"
		}

		limit := c.QueryInt("limit", 20)
		if limit < 1 {
			errors["limit"] = "Limit must be greater than 0!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("statusFilter", status)
		c.Locals("page", page)
		c.Locals("limit", limit)
		return c.Next()
	}
}

// Download validates the :registration_number and :kind path parameters
func Download() fiber.Handler {
	return func(c *fiber.Ctx) error {
		registrationNumber := strings.TrimSpace(c.Params("registration_number"))
		if registrationNumber == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid registration number!", nil)
		}

		kind := strings.ToLower(c.Params("kind"))
		if kind != "certificate" && kind != "transcript" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Kind must be certificate or transcript!", nil)
		}

		c.Locals("registrationNumber", registrationNumber)
		c.Locals("documentKind", kind)
		return c.Next()
	}
}
