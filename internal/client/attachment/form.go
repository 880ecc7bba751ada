// Package attachment implements the attachment upload pipeline: payload
// encryption, upload-form parsing, and the v2 (direct multipart) and v3
// (resumable) transfer protocols.
package attachment

import (
	"encoding/json"
	"fmt"

	"github.com/ozolins/attachup/internal/common"
)

// FormV2 is a server-issued credential set for the v2 direct upload: an
// S3-POST-style policy with its signature and the destination object key.
type FormV2 struct {
	ACL            string `json:"acl"`
	Key            string `json:"key"`
	Policy         string `json:"policy"`
	Algorithm      string `json:"algorithm"`
	Credential     string `json:"credential"`
	Date           string `json:"date"`
	Signature      string `json:"signature"`
	AttachmentID   *int64 `json:"attachmentId,omitempty"`
	AttachmentIDV3 string `json:"attachmentIdString,omitempty"`
}

// Fields returns the form's multipart fields in canonical order. The
// destination's signature check is sensitive to field ordering, so this
// order must be reproduced exactly in the upload body.
func (f *FormV2) Fields() [][2]string {
	return [][2]string{
		{"acl", f.ACL},
		{"key", f.Key},
		{"policy", f.Policy},
		{"x-amz-algorithm", f.Algorithm},
		{"x-amz-credential", f.Credential},
		{"x-amz-date", f.Date},
		{"x-amz-signature", f.Signature},
	}
}

// FormV3 is a server-issued credential set for the v3 resumable upload.
type FormV3 struct {
	Key                  string            `json:"key"`
	CDN                  int               `json:"cdn"`
	SignedUploadLocation string            `json:"signedUploadLocation"`
	Headers              map[string]string `json:"headers"`
}

// ParseFormV2 decodes and validates a raw v2 form response. Every required
// field must be present and non-empty; an attachment ID, when present, must
// be strictly positive.
func ParseFormV2(raw []byte) (*FormV2, error) {
	var f FormV2
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidForm, err)
	}

	required := map[string]string{
		"acl":        f.ACL,
		"key":        f.Key,
		"policy":     f.Policy,
		"algorithm":  f.Algorithm,
		"credential": f.Credential,
		"date":       f.Date,
		"signature":  f.Signature,
	}
	for name, value := range required {
		if value == "" {
			return nil, fmt.Errorf("%w: missing field %q", common.ErrInvalidForm, name)
		}
	}

	if f.AttachmentID != nil && *f.AttachmentID <= 0 {
		return nil, fmt.Errorf("%w: attachmentId must be positive, got %d", common.ErrInvalidForm, *f.AttachmentID)
	}

	return &f, nil
}

// ParseFormV3 decodes and validates a raw v3 form response. All fields are
// required: an empty key or signed URL, or a non-positive CDN number, is a
// validation failure, never a default substitution.
func ParseFormV3(raw []byte) (*FormV3, error) {
	var f FormV3
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidForm, err)
	}

	if f.Key == "" {
		return nil, fmt.Errorf("%w: missing field %q", common.ErrInvalidForm, "key")
	}
	if f.CDN <= 0 {
		return nil, fmt.Errorf("%w: cdn must be positive, got %d", common.ErrInvalidForm, f.CDN)
	}
	if f.SignedUploadLocation == "" {
		return nil, fmt.Errorf("%w: missing field %q", common.ErrInvalidForm, "signedUploadLocation")
	}
	if f.Headers == nil {
		return nil, fmt.Errorf("%w: missing field %q", common.ErrInvalidForm, "headers")
	}

	return &f, nil
}
