package controllers_test

import (
	"bytes"
	"certgen/config"
	"context"
	controllers "certgen/controllers/certificate"
	"certgen/database"
	"certgen/middleware"
	"certgen/models"
	"certgen/pipeline"
	certificateRoutes "certgen/routers/certificateRoutes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDbCounter uint64

func TestMain(m *testing.M) {
	config.LoadConfig()
	os.Exit(m.Run())
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB, *pipeline.Pipeline) {
	t.Helper()

	name := fmt.Sprintf("ctrl_%s_%d",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()),
		atomic.AddUint64(&testDbCounter, 1))
	db := database.ConnectTestDb(name)

	store, err := pipeline.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	converter := &pipeline.Converter{
		Bin:      fakeConverter(t),
		Timeout:  5 * time.Second,
		Retries:  1,
		MinBytes: 100,
		Backoff:  time.Millisecond,
		WorkRoot: t.TempDir(),
	}

	pipe := pipeline.New(db, store, converter, 5)
	controllers.InitPipeline(pipe)

	app := fiber.New()
	certificateRoutes.SetupCertificateRoutes(app)
	certificateRoutes.SetupAdminCertificateRoutes(app)

	return app, db, pipe
}

func fakeConverter(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-converter.sh")
	script := `#!/bin/sh
mkdir -p "$6"
base=$(basename "$7")
head -c 4096 /dev/zero > "$6/${base%.*}.pdf"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func seedClaimWithTemplates(t *testing.T, db *gorm.DB) *models.CertificateClaim {
	t.Helper()
	dir := t.TempDir()

	certPath := filepath.Join(dir, "certificate.html")
	require.NoError(t, os.WriteFile(certPath, []byte(
		"<h1>Certificate</h1><p>{{student_name}} / {{registration_number}}</p>"), 0644))
	transPath := filepath.Join(dir, "transcript.html")
	require.NoError(t, os.WriteFile(transPath, []byte(
		"<h1>Transcript</h1><p>{{unit_1}}</p>"), 0644))

	require.NoError(t, db.Create(&models.Template{
		Kind: models.TemplateKindCertificate, CourseKind: models.CourseKindCPD,
		SourcePath: certPath, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&models.Template{
		Kind: models.TemplateKindTranscript, CourseKind: models.CourseKindCPD,
		SourcePath: transPath, IsActive: true,
	}).Error)

	claim := models.CertificateClaim{
		StudentID: 7, CourseID: 42,
		CourseKind: models.CourseKindCPD, DisplayName: "Ada Lovelace",
		CourseTitle: "Analytical Engines", PaymentState: models.PaymentStatePaid,
	}
	require.NoError(t, db.Create(&claim).Error)
	require.NoError(t, db.Create(&models.CourseUnit{
		CourseID: claim.CourseID, Position: 1, Title: "Punched Cards",
	}).Error)

	return &claim
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateJWT(1, "Admin", "ADMIN")
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, app *fiber.App, method, target, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope
}

func TestTriggerGenerationEndpointIsIdempotent(t *testing.T) {
	app, db, _ := setupApp(t)
	claim := seedClaimWithTemplates(t, db)
	token := adminToken(t)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/generate", claim.ID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decodeEnvelope(t, resp)["data"].(map[string]interface{})
	firstNumber := data["registration_number"].(string)
	assert.NotEmpty(t, firstNumber)
	assert.Equal(t, models.CertStatusReady, data["status"])

	resp = doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/generate", claim.ID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = decodeEnvelope(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, firstNumber, data["registration_number"].(string))

	var count int64
	db.Model(&models.GeneratedCertificate{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestTriggerGenerationRequiresAdmin(t *testing.T) {
	app, db, _ := setupApp(t)
	claim := seedClaimWithTemplates(t, db)

	studentToken, err := middleware.GenerateJWT(7, "Ada", "USER")
	require.NoError(t, err)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/generate", claim.ID), studentToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/generate", claim.ID), "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestTriggerGenerationUnknownClaim(t *testing.T) {
	app, _, _ := setupApp(t)

	resp := doRequest(t, app, "POST", "/admin/certificate/9999/generate", adminToken(t))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDownloadGatedOnDelivery(t *testing.T) {
	app, db, pipe := setupApp(t)
	claim := seedClaimWithTemplates(t, db)
	token := adminToken(t)

	cert, err := pipe.Generate(context.Background(), claim.ID)
	require.NoError(t, err)
	regNo := *cert.RegistrationNumber

	// READY but not delivered: public download sees nothing
	resp := doRequest(t, app, "GET", "/certificate/download/"+regNo+"/certificate", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// Deliver, twice (idempotent)
	resp = doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/deliver", cert.ID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = doRequest(t, app, "POST", fmt.Sprintf("/admin/certificate/%d/deliver", cert.ID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Both documents download now
	for _, kind := range []string{"certificate", "transcript"} {
		resp = doRequest(t, app, "GET", "/certificate/download/"+regNo+"/"+kind, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotEmpty(t, body)
	}

	// Unknown number and bad kind stay hidden
	resp = doRequest(t, app, "GET", "/certificate/download/NCA999999/certificate", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp = doRequest(t, app, "GET", "/certificate/download/"+regNo+"/thesis", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListGeneratedFilter(t *testing.T) {
	app, db, pipe := setupApp(t)
	claim := seedClaimWithTemplates(t, db)
	token := adminToken(t)

	_, err := pipe.Generate(context.Background(), claim.ID)
	require.NoError(t, err)

	resp := doRequest(t, app, "GET", "/admin/certificate/list?status=ready&page=1&limit=10", token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decodeEnvelope(t, resp)["data"].(map[string]interface{})
	assert.Len(t, data["certificates"], 1)

	resp = doRequest(t, app, "GET", "/admin/certificate/list?status=FAILED", token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = decodeEnvelope(t, resp)["data"].(map[string]interface{})
	assert.Empty(t, data["certificates"])

	resp = doRequest(t, app, "GET", "/admin/certificate/list?status=BOGUS", token)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTemplateUploadAndActivation(t *testing.T) {
	app, db, _ := setupApp(t)
	token := adminToken(t)

	upload := func() uint {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		require.NoError(t, writer.WriteField("kind", "CERTIFICATE"))
		require.NoError(t, writer.WriteField("course_kind", "CPD"))
		part, err := writer.CreateFormFile("file", "template.html")
		require.NoError(t, err)
		_, err = part.Write([]byte("<h1>{{student_name}}</h1>"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest("POST", "/admin/template/upload", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		data := decodeEnvelope(t, resp)["data"].(map[string]interface{})
		assert.Equal(t, false, data["is_active"])
		return uint(data["ID"].(float64))
	}

	firstID := upload()
	secondID := upload()

	resp := doRequest(t, app, "POST", fmt.Sprintf("/admin/template/%d/activate", firstID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Activating the sibling atomically deactivates the first
	resp = doRequest(t, app, "POST", fmt.Sprintf("/admin/template/%d/activate", secondID), token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var active []models.Template
	require.NoError(t, db.Where("kind = ? AND course_kind = ? AND is_active = ?",
		models.TemplateKindCertificate, models.CourseKindCPD, true).Find(&active).Error)
	require.Len(t, active, 1)
	assert.Equal(t, secondID, active[0].ID)
}

func TestMarkClaimPayableSchedulesGeneration(t *testing.T) {
	app, db, _ := setupApp(t)
	claim := seedClaimWithTemplates(t, db)
	require.NoError(t, db.Model(claim).Update("payment_state", models.PaymentStatePending).Error)

	resp := doRequest(t, app, "POST", fmt.Sprintf("/certificate/claim/%d/payable", claim.ID), adminToken(t))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var updated models.CertificateClaim
	require.NoError(t, db.First(&updated, claim.ID).Error)
	assert.Equal(t, models.PaymentStatePaid, updated.PaymentState)

	// Background generation lands eventually
	require.Eventually(t, func() bool {
		var cert models.GeneratedCertificate
		if err := db.Where("claim_id = ?", claim.ID).First(&cert).Error; err != nil {
			return false
		}
		return cert.Status == models.CertStatusReady
	}, 5*time.Second, 50*time.Millisecond)
}
