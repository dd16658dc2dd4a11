package imaging

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aidims/aidims/internal/imagestore"
	"github.com/aidims/aidims/internal/platform/apperror"
	"github.com/aidims/aidims/internal/platform/auth"
)

func newTestServer(f *fixture) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperror.ErrorHandler(zerolog.Nop())
	e.Use(auth.DevAuthMiddleware())
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func multipartUpload(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		part, err := w.CreateFormFile("file", "image.dcm")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	f := newFixture("Chest", "CR")
	e := newTestServer(f)

	body, contentType := multipartUpload(t, map[string]string{
		"order_id":   f.orderID.String(),
		"patient_id": f.patientID.String(),
	}, []byte("dicom"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result imagestore.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ID != "inst-store-1" {
		t.Errorf("result.ID = %q", result.ID)
	}
	if len(f.studies.byUID) != 1 {
		t.Error("study was not created")
	}
}

func TestUploadHandler_MissingFile(t *testing.T) {
	f := newFixture("Chest", "CR")
	e := newTestServer(f)

	body, contentType := multipartUpload(t, map[string]string{"order_id": f.orderID.String()}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadHandler_BadOrderID(t *testing.T) {
	f := newFixture("Chest", "CR")
	e := newTestServer(f)

	body, contentType := multipartUpload(t, map[string]string{"order_id": "not-a-uuid"}, []byte("dicom"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dicom/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListInstancesHandler(t *testing.T) {
	f := newFixture("Chest", "CR")
	e := newTestServer(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dicom/orders/"+f.orderID.String()+"/instances", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var instances []*Instance
	if err := json.Unmarshal(rec.Body.Bytes(), &instances); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(instances) != 0 {
		t.Errorf("instances = %d, want 0", len(instances))
	}
}

func TestPreviewHandler(t *testing.T) {
	f := newFixture("Chest", "CR")
	e := newTestServer(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dicom/instances/inst-store-1/preview", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q, want image/png", got)
	}
}
