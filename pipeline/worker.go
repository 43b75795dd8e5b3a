package pipeline

import (
	"certgen/config"
	"certgen/models"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// logWorker logs worker events with timestamp
func logWorker(message string) {
	log.Printf("[CERT-WORKER %s] %s", time.Now().Format(time.RFC3339), message)
}

// processPayableClaims picks up paid claims that have no generated
// certificate row yet and runs them through the pipeline. Claiming is the
// atomic status transition inside Generate, so concurrent worker processes
// never double-generate.
func processPayableClaims(p *Pipeline) {
	var claims []models.CertificateClaim
	if err := p.DB.
		Where("payment_state = ? AND is_deleted = ?", models.PaymentStatePaid, false).
		Where("id NOT IN (?)", p.DB.Model(&models.GeneratedCertificate{}).Select("claim_id")).
		Limit(50).
		Find(&claims).Error; err != nil {
		logWorker("Error fetching payable claims: " + err.Error())
		return
	}

	for _, claim := range claims {
		if _, err := p.Generate(context.Background(), claim.ID); err != nil {
			logWorker("Generation failed for claim: " + err.Error())
		}
	}
}

// retryFailedCertificates re-runs FAILED rows that still have attempts
// left. Generate regenerates only the documents that are missing.
func retryFailedCertificates(p *Pipeline) {
	var certs []models.GeneratedCertificate
	if err := p.DB.
		Where("status = ? AND attempt_count < ?", models.CertStatusFailed, p.MaxAttempts).
		Limit(50).
		Find(&certs).Error; err != nil {
		logWorker("Error fetching failed certificates: " + err.Error())
		return
	}

	for _, cert := range certs {
		if _, err := p.Generate(context.Background(), cert.ClaimID); err != nil {
			logWorker("Retry failed for claim: " + err.Error())
		}
	}
}

// reclaimStaleGenerating fails GENERATING rows whose worker died without
// finishing. The lease is the row's updated_at: a live worker touches the
// row throughout the run, so a GENERATING row untouched past the threshold
// has no owner. The conditional update is the same CAS discipline as the
// claim transition; a merely slow worker loses nothing since it already
// holds the row and keeps writing to it. Reclaimed rows carry their
// recorded artifact paths forward; the next retry pass regenerates only
// what is missing.
func reclaimStaleGenerating(p *Pipeline, staleAfter time.Duration) {
	cutoff := time.Now().Add(-staleAfter)
	res := p.DB.Model(&models.GeneratedCertificate{}).
		Where("status = ? AND updated_at < ?", models.CertStatusGenerating, cutoff).
		Updates(map[string]interface{}{
			"status":     models.CertStatusFailed,
			"last_error": "generation lease expired; worker presumed dead",
		})
	if res.Error != nil {
		logWorker("Error reclaiming stale generations: " + res.Error.Error())
		return
	}
	if res.RowsAffected > 0 {
		logWorker(fmt.Sprintf("Reclaimed %d stale generation(s)", res.RowsAffected))
	}
}

// StartGenerationScheduler registers the polling pass on the cron runner.
func StartGenerationScheduler(c *cron.Cron, p *Pipeline) {
	lease := time.Duration(config.AppConfig.GenerationLeaseSec) * time.Second
	c.AddFunc(config.AppConfig.WorkerCronSpec, func() {
		reclaimStaleGenerating(p, lease)
		processPayableClaims(p)
		retryFailedCertificates(p)
	})
	logWorker("Generation scheduler started with spec " + config.AppConfig.WorkerCronSpec)
}

// InitializeCertificateWorker builds and starts the cron-driven worker.
func InitializeCertificateWorker(p *Pipeline) *cron.Cron {
	logWorker("Initializing certificate worker...")

	c := cron.New()
	StartGenerationScheduler(c, p)
	c.Start()

	logWorker("Certificate worker initialized successfully")
	return c
}
