package pipeline

import (
	"certgen/config"
	"certgen/models"
	"fmt"

	"gorm.io/gorm"
)

// RegistrationSequenceName is the counter row backing certificate numbering.
// One issuing authority, one row.
const RegistrationSequenceName = "certificate"

// AllocateRegistrationNumber atomically increments the registration sequence
// and returns the next formatted number. Safe under arbitrary concurrent
// callers: the UPDATE takes a row lock held until commit, so two
// transactions can never read the same value.
func AllocateRegistrationNumber(db *gorm.DB) (string, error) {
	var number string

	err := db.Transaction(func(tx *gorm.DB) error {
		seq := models.RegistrationSequence{Name: RegistrationSequenceName}
		if err := tx.Where(models.RegistrationSequence{Name: RegistrationSequenceName}).
			FirstOrCreate(&seq).Error; err != nil {
			return err
		}

		res := tx.Model(&models.RegistrationSequence{}).
			Where("name = ?", RegistrationSequenceName).
			Update("last_value", gorm.Expr("last_value + ?", 1))
		if res.Error != nil {
			return res.Error
		}

		// Re-read inside the same transaction; the row lock from the
		// UPDATE guarantees this is our value.
		if err := tx.Where("name = ?", RegistrationSequenceName).First(&seq).Error; err != nil {
			return err
		}

		number = FormatRegistrationNumber(seq.LastValue)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRegistrationAllocation, err)
	}

	return number, nil
}

// FormatRegistrationNumber renders a sequence value as the printed
// registration number: issuer prefix plus a zero-padded numeric part.
func FormatRegistrationNumber(value uint64) string {
	return fmt.Sprintf("%s%0*d", config.AppConfig.IssuerPrefix, config.AppConfig.RegistrationPad, value)
}
