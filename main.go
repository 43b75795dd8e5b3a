package main

import (
	"certgen/config"
	controllers "certgen/controllers/certificate"
	"certgen/database"
	"certgen/pipeline"
	certificateRoutes "certgen/routers/certificateRoutes"
	"log"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()

	store, err := pipeline.NewLocalStore(config.AppConfig.StorageRoot)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}

	converter := pipeline.NewConverter(filepath.Join(config.AppConfig.StorageRoot, "work"))
	pipe := pipeline.New(database.Database.Db, store, converter, config.AppConfig.MaxAttempts)
	controllers.InitPipeline(pipe)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",        // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	// Serve static files from the public folder
	app.Static("/", "./public")

	certificateRoutes.SetupCertificateRoutes(app)
	certificateRoutes.SetupAdminCertificateRoutes(app)

	// Background worker: picks up payable claims and retries failures
	worker := pipeline.InitializeCertificateWorker(pipe)
	defer worker.Stop()

	log.Printf("Server is running on port %s", config.AppConfig.Port)
	log.Fatal(app.Listen(":" + config.AppConfig.Port))
}
