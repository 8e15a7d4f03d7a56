package qrtoken

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestRoundTrip(t *testing.T) {
	c := newCodec(t)
	subjects := [][2]string{
		{"3f2a1c9e-0000-4000-8000-000000000001", "2110511001"},
		{"1", "A"},
		{"student with spaces", "kode/aneh"},
	}
	for _, s := range subjects {
		tok := c.Issue(s[0], s[1])
		if len(tok.Signature) != signatureLen {
			t.Fatalf("signature length = %d", len(tok.Signature))
		}
		payload, err := c.Encode(tok)
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.VerifyPayload(payload)
		if err != nil {
			t.Fatalf("VerifyPayload(%s): %v", payload, err)
		}
		if got.ID != s[0] || got.Code != s[1] {
			t.Fatalf("got %+v, want %v", got, s)
		}
	}
}

func TestIssueDeterministic(t *testing.T) {
	c := newCodec(t)
	if c.Issue("42", "NIM42") != c.Issue("42", "NIM42") {
		t.Fatal("issue should be deterministic")
	}
	other, _ := NewCodec("another-secret")
	if c.Issue("42", "NIM42").Signature == other.Issue("42", "NIM42").Signature {
		t.Fatal("signature should depend on the secret")
	}
}

func mutate(s string, i int) string {
	b := []byte(s)
	if b[i] == 'x' {
		b[i] = 'y'
	} else {
		b[i] = 'x'
	}
	return string(b)
}

func TestTamperDetection(t *testing.T) {
	c := newCodec(t)
	tok := c.Issue("student-0001", "2110511001")

	for i := range tok.Signature {
		bad := tok
		bad.Signature = mutate(tok.Signature, i)
		if _, err := c.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("signature mutation at %d accepted", i)
		}
	}
	for i := range tok.SubjectID {
		bad := tok
		bad.SubjectID = mutate(tok.SubjectID, i)
		if _, err := c.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("subject id mutation at %d accepted", i)
		}
	}
	for i := range tok.SubjectCode {
		bad := tok
		bad.SubjectCode = mutate(tok.SubjectCode, i)
		if _, err := c.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("subject code mutation at %d accepted", i)
		}
	}
}

func TestCannotReassembleParts(t *testing.T) {
	c := newCodec(t)
	a := c.Issue("id-a", "code-a")
	b := c.Issue("id-b", "code-b")
	mixed := Token{SubjectID: a.SubjectID, SubjectCode: b.SubjectCode, Signature: a.Signature}
	if _, err := c.Verify(mixed); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("mixed token accepted")
	}
	mixed.Signature = b.Signature
	if _, err := c.Verify(mixed); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("mixed token accepted with other signature")
	}
}

func TestVerifyPayloadMalformed(t *testing.T) {
	c := newCodec(t)
	cases := []string{
		"",
		"not json",
		`{"subject_id":"1"}`,
		`{"subject_id":"1","subject_code":"A"}`,
		`{"subject_id":"","subject_code":"A","signature":"deadbeef"}`,
		`[1,2,3]`,
	}
	for _, p := range cases {
		if _, err := c.VerifyPayload(p); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyPayload(%q) = %v, want ErrInvalidToken", p, err)
		}
	}
}

func TestRenderAndDirStore(t *testing.T) {
	c := newCodec(t)
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	// stale artifact for the same code and an unrelated one
	stale := filepath.Join(dir, "NIM1-00000000.png")
	unrelated := filepath.Join(dir, "NIM1-X-00000000.png")
	for _, p := range []string{stale, unrelated} {
		if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tok := c.Issue("1", "NIM1")
	png, err := c.Render(tok, 128)
	if err != nil {
		t.Fatal(err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Fatal("render did not produce a PNG")
	}

	path, err := store.Save(context.Background(), tok, png)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "NIM1-"+tok.Signature+".png" {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale artifact should have been removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatal("artifact for another code must be kept")
	}

	if err := store.Remove(context.Background(), "NIM1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Remove should delete the current artifact")
	}
	if err := store.Remove(context.Background(), "NIM1"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestSafeCode(t *testing.T) {
	if got := SafeCode("21/05 11"); got != "21_05_11" {
		t.Fatalf("SafeCode = %q", got)
	}
}
