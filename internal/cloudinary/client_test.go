package cloudinary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"internattend/internal/qrtoken"
)

func TestSignExcludesKeyAndSortsParams(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{
		"timestamp": "1700000000",
		"public_id": "qr/NIM1",
		"api_key":   "key",
		"empty":     "",
	})
	other := c.sign(map[string]string{
		"public_id": "qr/NIM1",
		"timestamp": "1700000000",
	})
	if got != other {
		t.Fatalf("signature should ignore api_key and empty values: %s != %s", got, other)
	}
	if len(got) != 40 {
		t.Fatalf("sha1 hex length = %d", len(got))
	}
}

func TestSaveOverwritesPublicID(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/demo/image/upload") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"qr/NIM1","secure_url":"https://cdn.example/qr/NIM1.png","version":3}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "internattend")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	url, err := c.Save(context.Background(), qrtoken.Token{SubjectID: "1", SubjectCode: "NIM1", Signature: "abcd1234"}, []byte("png"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.example/qr/NIM1.png" {
		t.Fatalf("url = %s", url)
	}
	if form["public_id"] != "qr/NIM1" || form["overwrite"] != "true" || form["invalidate"] != "true" {
		t.Fatalf("unexpected form %v", form)
	}
	if form["folder"] != "internattend" || form["signature"] == "" {
		t.Fatalf("missing folder or signature: %v", form)
	}
}

func TestUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if _, err := c.Upload(context.Background(), "qr/x", []byte("png")); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestDestroy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"not found"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if err := c.Destroy(context.Background(), PublicID("NIM 1")); err != nil {
		t.Fatal(err)
	}
	if PublicID("NIM 1") != "qr/NIM_1" {
		t.Fatalf("PublicID = %s", PublicID("NIM 1"))
	}
}
