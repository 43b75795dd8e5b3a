package controllers

import (
	"certgen/config"
	"certgen/database"
	"certgen/middleware"
	"certgen/models"
	"certgen/pipeline"
	"certgen/utils"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
)

// UploadTemplate stores a new template document. Uploaded templates start
// inactive; activation is a separate, atomic step.
func UploadTemplate(c *fiber.Ctx) error {
	kind := c.Locals("templateKind").(string)
	courseKind := c.Locals("templateCourseKind").(string)

	file, err := c.FormFile("file")
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Template file is required!", nil)
	}

	destDir := filepath.Join(config.AppConfig.StorageRoot, pipeline.ArtifactTemplate)
	storedPath, err := utils.SaveUploadedFile(file, destDir)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to store template file!", nil)
	}

	template := models.Template{
		Kind:       kind,
		CourseKind: courseKind,
		SourcePath: storedPath,
		IsActive:   false,
	}

	if err := database.Database.Db.Create(&template).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create template!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Template uploaded successfully!", template)
}

// ActivateTemplate makes a template the active one for its (kind, course
// kind) pair, deactivating any sibling in the same transaction.
func ActivateTemplate(c *fiber.Ctx) error {
	templateID := c.Locals("templateID").(int)

	var template models.Template
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", templateID, false).First(&template).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Template not found!", nil)
	}

	tx := database.Database.Db.Begin()

	if err := tx.Model(&models.Template{}).
		Where("kind = ? AND course_kind = ? AND is_active = ?", template.Kind, template.CourseKind, true).
		Update("is_active", false).Error; err != nil {
		tx.Rollback()
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to activate template!", nil)
	}

	if err := tx.Model(&models.Template{}).
		Where("id = ?", template.ID).
		Update("is_active", true).Error; err != nil {
		tx.Rollback()
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to activate template!", nil)
	}

	tx.Commit()

	template.IsActive = true
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Template activated successfully!", template)
}

// ListTemplates lists all templates
func ListTemplates(c *fiber.Ctx) error {
	var templates []models.Template
	if err := database.Database.Db.Where("is_deleted = ?", false).
		Order("created_at desc").Find(&templates).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch templates!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Templates fetched successfully!", fiber.Map{
		"templates": templates,
		"total":     len(templates),
	})
}
