package certificateValidator

import (
	"certgen/middleware"
	"certgen/models"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UploadTemplate validates the multipart form for a template upload
func UploadTemplate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		errors := make(map[string]string)

		kind := strings.ToUpper(strings.TrimSpace(c.FormValue("kind")))
		if kind != models.TemplateKindCertificate && kind != models.TemplateKindTranscript {
			errors["kind"] = "Kind must be CERTIFICATE or TRANSCRIPT!"
		}

		courseKind := strings.ToUpper(strings.TrimSpace(c.FormValue("course_kind")))
		if courseKind != models.CourseKindCPD && courseKind != models.CourseKindQualification {
			errors["course_kind"] = "Course kind must be CPD or QUALIFICATION!"
		}

		file, err := c.FormFile("file")
		if err != nil {
			errors["file"] = "Template file is required!"
		} else if file.Size == 0 {
			errors["file"] = "Template file must not be empty!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("templateKind", kind)
		c.Locals("templateCourseKind", courseKind)
		return c.Next()
	}
}

// TemplateIDParam validates the :id path parameter
func TemplateIDParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		templateID, err := strconv.Atoi(c.Params("id"))
		if err != nil || templateID < 1 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid template id!", nil)
		}

		c.Locals("templateID", templateID)
		return c.Next()
	}
}
