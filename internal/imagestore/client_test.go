package imagestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aidims/aidims/internal/platform/apperror"
)

func TestStore(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/instances" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(UploadResult{
			ID:           "inst-1",
			ParentSeries: "ser-1",
			ParentStudy:  "stu-1",
			Status:       "Success",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.Store(context.Background(), []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if gotContentType != contentTypeDICOM {
		t.Errorf("content type = %q, want %q", gotContentType, contentTypeDICOM)
	}
	if res.ID != "inst-1" || res.ParentStudy != "stu-1" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.AlreadyStored() {
		t.Error("AlreadyStored() = true for Status Success")
	}
}

func TestStore_AlreadyStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UploadResult{ID: "inst-1", Status: "AlreadyStored"})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Store(context.Background(), []byte{0x00})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !res.AlreadyStored() {
		t.Error("AlreadyStored() = false, want true")
	}
}

func TestStore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Store(context.Background(), []byte{0x00})
	if err == nil {
		t.Fatal("Store() error = nil, want error")
	}
	if apperror.KindOf(err) != apperror.KindExternal {
		t.Errorf("kind = %v, want KindExternal", apperror.KindOf(err))
	}
}

func TestInstanceMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instances/inst-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"ID": "inst-1",
			"ParentSeries": "ser-1",
			"MainDicomTags": {
				"SOPInstanceUID": "1.2.3.4",
				"InstanceNumber": 7,
				"Flag": true,
				"Ignored": ["a", "b"]
			}
		}`))
	}))
	defer srv.Close()

	details, err := NewClient(srv.URL, time.Second).InstanceMetadata(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("InstanceMetadata() error = %v", err)
	}
	if details.ParentSeries != "ser-1" {
		t.Errorf("ParentSeries = %q, want ser-1", details.ParentSeries)
	}
	tags := details.MainDicomTags
	if got := tags.Get("SOPInstanceUID"); got != "1.2.3.4" {
		t.Errorf("SOPInstanceUID = %q, want 1.2.3.4", got)
	}
	if got := tags.Get("InstanceNumber"); got != "7" {
		t.Errorf("InstanceNumber = %q, want 7 (numeric coerced to string)", got)
	}
	if got := tags.Get("Flag"); got != "true" {
		t.Errorf("Flag = %q, want true", got)
	}
	if _, ok := tags["Ignored"]; ok {
		t.Error("array-valued tag was not dropped")
	}
}

func TestMetadata_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.StudyMetadata(context.Background(), "nope")
	if apperror.KindOf(err) != apperror.KindNotFound {
		t.Errorf("kind = %v, want KindNotFound", apperror.KindOf(err))
	}
}

func TestPreview(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instances/inst-1/preview" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer srv.Close()

	data, contentType, err := NewClient(srv.URL, time.Second).Preview(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("content type = %q, want image/png", contentType)
	}
	if string(data) != string(png) {
		t.Errorf("unexpected body %v", data)
	}
}

func TestFile_DefaultContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte("DICM"))
	}))
	defer srv.Close()

	_, contentType, err := NewClient(srv.URL, time.Second).File(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if contentType != "application/octet-stream" {
		t.Errorf("content type = %q, want application/octet-stream", contentType)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.Store(context.Background(), []byte{0x00})
	if err == nil {
		t.Fatal("Store() error = nil, want error")
	}
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindExternal {
		t.Errorf("error = %v, want KindExternal", err)
	}
}
