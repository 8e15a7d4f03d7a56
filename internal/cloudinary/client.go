package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"internattend/internal/qrtoken"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

var _ qrtoken.ArtifactStore = (*Client)(nil)

// Client stores QR artifacts on Cloudinary using their REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Version   int64  `json:"version"`
	Bytes     int    `json:"bytes"`
}

// PublicID is the stable id of a subject's QR artifact. Every regeneration
// overwrites the same id, which retires the previous image.
func PublicID(subjectCode string) string {
	return "qr/" + qrtoken.SafeCode(subjectCode)
}

// Save implements qrtoken.ArtifactStore.
func (c *Client) Save(ctx context.Context, tok qrtoken.Token, png []byte) (string, error) {
	res, err := c.Upload(ctx, PublicID(tok.SubjectCode), png)
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

// Remove implements qrtoken.ArtifactStore.
func (c *Client) Remove(ctx context.Context, subjectCode string) error {
	return c.Destroy(ctx, PublicID(subjectCode))
}

// Upload overwrites the image stored under publicID and invalidates CDN copies.
func (c *Client) Upload(ctx context.Context, publicID string, png []byte) (*UploadResult, error) {
	params := c.baseParams()
	params["public_id"] = publicID
	params["overwrite"] = "true"
	params["invalidate"] = "true"
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", qrtoken.SafeCode(publicID)+".png")
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	var result UploadResult
	if err := c.post(ctx, "image/upload", w.FormDataContentType(), &buf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Destroy removes the image stored under publicID.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	params := c.baseParams()
	params["public_id"] = publicID
	params["invalidate"] = "true"
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	w.Close()

	var result struct {
		Result string `json:"result"`
	}
	if err := c.post(ctx, "image/destroy", w.FormDataContentType(), &buf, &result); err != nil {
		return err
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("cloudinary: destroy %s: %s", publicID, result.Result)
	}
	return nil
}

func (c *Client) baseParams() map[string]string {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	return params
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.BaseURL, "/"), c.CloudName, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: %s failed (%d): %s", path, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key and file are excluded from the signature per Cloudinary spec.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
