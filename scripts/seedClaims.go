package main

import (
	"certgen/config"
	"certgen/database"
	"certgen/models"
	"encoding/csv"
	"log"
	"os"
	"strconv"
	"strings"
)

// Seeds certificate claims and course units from Claims.csv:
// student_id,course_id,course_kind,display_name,student_email,course_title,unit1|unit2|...
func main() {
	// Load config and connect to database
	config.LoadConfig()
	database.ConnectDb()

	// Open CSV file
	file, err := os.Open("Claims.csv")
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer file.Close()

	// Create CSV reader
	reader := csv.NewReader(file)

	// Read all records
	records, err := reader.ReadAll()
	if err != nil {
		log.Fatalf("Failed to read CSV: %v", err)
	}

	db := database.Database.Db
	seeded := 0

	for i, record := range records {
		if i == 0 {
			continue // skip header
		}
		if len(record) < 7 {
			log.Printf("Skipping malformed row %d", i)
			continue
		}

		studentID, err := strconv.Atoi(record[0])
		if err != nil {
			log.Printf("Skipping row %d: bad student_id %q", i, record[0])
			continue
		}
		courseID, err := strconv.Atoi(record[1])
		if err != nil {
			log.Printf("Skipping row %d: bad course_id %q", i, record[1])
			continue
		}

		claim := models.CertificateClaim{
			StudentID:    uint(studentID),
			CourseID:     uint(courseID),
			CourseKind:   record[2],
			DisplayName:  record[3],
			StudentEmail: record[4],
			CourseTitle:  record[5],
			PaymentState: models.PaymentStatePaid,
		}
		if err := db.Create(&claim).Error; err != nil {
			log.Printf("Failed to create claim for row %d: %v", i, err)
			continue
		}

		for pos, title := range splitUnits(record[6]) {
			unit := models.CourseUnit{
				CourseID: uint(courseID),
				Position: pos + 1,
				Title:    title,
			}
			if err := db.Create(&unit).Error; err != nil {
				log.Printf("Failed to create unit for course %d: %v", courseID, err)
			}
		}

		seeded++
	}

	log.Printf("Seeded %d claims.", seeded)
}

func splitUnits(raw string) []string {
	var units []string
	for _, part := range strings.Split(raw, "|") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			units = append(units, trimmed)
		}
	}
	return units
}
