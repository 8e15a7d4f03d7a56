// Package qrtoken issues and verifies the signed identity token carried by a
// student's QR code.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidToken is returned for any token that cannot be trusted: missing
// fields, unparseable payload or a signature mismatch.
var ErrInvalidToken = errors.New("QR code invalid")

const (
	shortIDLen   = 8
	signatureLen = 8
	// separator keeps ("12","3") and ("1","23") from hashing identically.
	separator = "|"
)

// Token is the payload encoded into a QR image.
type Token struct {
	SubjectID   string `json:"subject_id"`
	SubjectCode string `json:"subject_code"`
	Signature   string `json:"signature"`
}

// Subject identifies the student a verified token belongs to.
type Subject struct {
	ID   string
	Code string
}

// Codec signs and verifies tokens with a server-held secret.
type Codec struct {
	secret []byte
}

// NewCodec returns a codec. An empty secret is a startup error.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("qrtoken: secret required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Issue returns the deterministic token for a subject.
func (c *Codec) Issue(subjectID, subjectCode string) Token {
	return Token{
		SubjectID:   subjectID,
		SubjectCode: subjectCode,
		Signature:   c.sign(subjectID, subjectCode),
	}
}

// Encode returns the JSON payload embedded in the QR image.
func (c *Codec) Encode(tok Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a QR payload without verifying it.
func Decode(payload string) (Token, error) {
	var tok Token
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &tok); err != nil {
		return Token{}, ErrInvalidToken
	}
	return tok, nil
}

// Verify recomputes the signature from the token's own subject fields.
func (c *Codec) Verify(tok Token) (Subject, error) {
	if tok.SubjectID == "" || tok.SubjectCode == "" || tok.Signature == "" {
		return Subject{}, ErrInvalidToken
	}
	expected := c.sign(tok.SubjectID, tok.SubjectCode)
	if !hmac.Equal([]byte(expected), []byte(tok.Signature)) {
		return Subject{}, ErrInvalidToken
	}
	return Subject{ID: tok.SubjectID, Code: tok.SubjectCode}, nil
}

// VerifyPayload decodes and verifies a raw QR payload.
func (c *Codec) VerifyPayload(payload string) (Subject, error) {
	tok, err := Decode(payload)
	if err != nil {
		return Subject{}, err
	}
	return c.Verify(tok)
}

// shortID is a per-subject salt derived from the secret.
func (c *Codec) shortID(subjectID, subjectCode string) string {
	h := sha256.New()
	h.Write([]byte(subjectID + separator + subjectCode + separator))
	h.Write(c.secret)
	return hex.EncodeToString(h.Sum(nil))[:shortIDLen]
}

func (c *Codec) sign(subjectID, subjectCode string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(subjectID + separator + subjectCode + separator + c.shortID(subjectID, subjectCode)))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}
