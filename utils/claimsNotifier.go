package utils

import (
	"certgen/config"
	"log"

	"github.com/go-resty/resty/v2"
)

// NotifyClaimStatus posts a status change back to the claims subsystem so
// student dashboards can reflect it. Fire-and-forget: a failed callback is
// logged, never retried, and never blocks the pipeline.
func NotifyClaimStatus(claimID uint, status string, registrationNumber string) {
	callbackURL := config.AppConfig.ClaimsCallbackURL
	if callbackURL == "" {
		return
	}

	client := resty.New()
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"claim_id":            claimID,
			"status":              status,
			"registration_number": registrationNumber,
		}).
		Post(callbackURL)
	if err != nil {
		log.Printf("Failed to notify claims subsystem for claim %d: %v", claimID, err)
		return
	}
	if resp.StatusCode() >= 300 {
		log.Printf("Claims subsystem callback for claim %d returned %d: %s", claimID, resp.StatusCode(), resp.String())
	}
}
