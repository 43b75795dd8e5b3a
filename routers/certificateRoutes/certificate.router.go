package certificateRoutes

import (
	controllers "certgen/controllers/certificate"
	"certgen/middleware"
	validators "certgen/validators/certificate"

	"github.com/gofiber/fiber/v2"
)

// SetupCertificateRoutes sets up the public and claims-facing routes
func SetupCertificateRoutes(app *fiber.App) {
	certGroup := app.Group("/certificate")

	// Signal from the claims subsystem that payment completed
	certGroup.Post("/claim/:claim_id/payable", middleware.JWTMiddleware, validators.ClaimIDParam(), controllers.MarkClaimPayable)

	// Public download, gated on delivery
	certGroup.Get("/download/:registration_number/:kind", validators.Download(), controllers.DownloadByRegistrationNumber)
}

// SetupAdminCertificateRoutes sets up all admin certificate management routes
func SetupAdminCertificateRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin/certificate")

	adminGroup.Post("/:claim_id/generate", middleware.JWTMiddleware, middleware.AdminOnly, validators.ClaimIDParam(), controllers.TriggerGeneration)
	adminGroup.Get("/list", middleware.JWTMiddleware, middleware.AdminOnly, validators.ListGenerated(), controllers.ListGenerated)
	adminGroup.Post("/:id/deliver", middleware.JWTMiddleware, middleware.AdminOnly, validators.CertificateIDParam(), controllers.DeliverCertificate)

	// Template management
	templateGroup := app.Group("/admin/template")
	templateGroup.Post("/upload", middleware.JWTMiddleware, middleware.AdminOnly, validators.UploadTemplate(), controllers.UploadTemplate)
	templateGroup.Post("/:id/activate", middleware.JWTMiddleware, middleware.AdminOnly, validators.TemplateIDParam(), controllers.ActivateTemplate)
	templateGroup.Get("/list", middleware.JWTMiddleware, middleware.AdminOnly, controllers.ListTemplates)
}
