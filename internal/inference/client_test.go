package inference

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aidims/aidims/internal/platform/apperror"
)

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict_findings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "preview.png" {
			t.Errorf("filename = %q, want preview.png", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "imagebytes" {
			t.Errorf("file content = %q", data)
		}
		w.Write([]byte(`{
			"model_version": "chest-xray-v3",
			"classification": {"status": "abnormal", "confidence": 0.91},
			"findings": [
				{"label": "Cardiomegaly", "confidence_score": 0.87, "bbox_xyxy": [10, 20, 110, 220]},
				{"label": "Effusion", "confidence_score": 0.42, "bbox_xyxy": [5, 6]}
			]
		}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Predict(context.Background(), []byte("imagebytes"), "preview.png")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if res.ModelVersion != "chest-xray-v3" {
		t.Errorf("ModelVersion = %q", res.ModelVersion)
	}
	if res.Classification.Status != "abnormal" || res.Classification.Confidence != 0.91 {
		t.Errorf("unexpected classification %+v", res.Classification)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(res.Findings))
	}
	if res.Findings[0].Label != "Cardiomegaly" || len(res.Findings[0].BboxXYXY) != 4 {
		t.Errorf("unexpected first finding %+v", res.Findings[0])
	}
	if len(res.Findings[1].BboxXYXY) != 2 {
		t.Errorf("partial bbox length = %d, want 2", len(res.Findings[1].BboxXYXY))
	}
}

func TestPredict_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), []byte("x"), "a.png")
	if err == nil {
		t.Fatal("Predict() error = nil, want error")
	}
	if apperror.KindOf(err) != apperror.KindExternal {
		t.Errorf("kind = %v, want KindExternal", apperror.KindOf(err))
	}
}

func TestPredict_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.Predict(context.Background(), []byte("x"), "a.png")
	if apperror.KindOf(err) != apperror.KindExternal {
		t.Errorf("kind = %v, want KindExternal", apperror.KindOf(err))
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if !c.Healthy(context.Background()) {
		t.Error("Healthy() = false, want true")
	}

	down := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	if down.Healthy(context.Background()) {
		t.Error("Healthy() = true for unreachable service")
	}
}
