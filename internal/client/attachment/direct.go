package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/ozolins/attachup/internal/common"
	"github.com/ozolins/attachup/internal/logging"
)

// DirectUploader implements the v2 protocol: one multipart POST of the full
// ciphertext to the storage endpoint named by the form.
//
// It performs no retries of its own; a connectivity failure is classified and
// returned so the caller can decide to retry the whole call.
type DirectUploader struct {
	endpoint string
	client   *http.Client
	log      logging.Logger
}

func NewDirectUploader(endpoint string, client *http.Client, log logging.Logger) *DirectUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &DirectUploader{endpoint: endpoint, client: client, log: log}
}

// buildDirectBody assembles the multipart body. Field order is significant:
// form-provided fields in form order, then Content-Type, then the file last.
func buildDirectBody(form *FormV2, ciphertext []byte, boundary string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if boundary != "" {
		if err := w.SetBoundary(boundary); err != nil {
			return nil, "", err
		}
	}

	for _, field := range form.Fields() {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField("Content-Type", "application/octet-stream"); err != nil {
		return nil, "", err
	}

	part, err := w.CreateFormFile("file", "attachment")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(ciphertext); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Upload POSTs the ciphertext and returns the form's object key on success.
func (u *DirectUploader) Upload(ctx context.Context, ciphertext []byte, form *FormV2, progress ProgressFunc) (string, error) {
	body, contentType, err := buildDirectBody(form, ciphertext, "")
	if err != nil {
		return "", err
	}

	reader := newProgressReader(bytes.NewReader(body), int64(len(body)), progress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, reader)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("direct upload rejected: %s: %s", resp.Status, string(data))
	}

	if u.log != nil {
		u.log.Debug(ctx, "direct upload complete", "key", form.Key, "bytes", len(ciphertext))
	}
	return form.Key, nil
}
