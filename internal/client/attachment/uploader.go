package attachment

import (
	"context"
	"net/http"

	"github.com/ozolins/attachup/internal/client/channel"
	"github.com/ozolins/attachup/internal/logging"
)

const (
	formPathV2 = "/v1/attachments/form/v2"
	formPathV3 = "/v1/attachments/form/v3"
)

// Uploader drives the whole pipeline for one protocol generation: encrypt,
// fetch a form over the dual-channel requester, parse it, transfer the bytes.
//
// Each call owns its payload and session exclusively; concurrent calls are
// independent. Transports are injected so the pipeline is testable with
// fakes.
type Uploader struct {
	requester channel.Requester
	client    *http.Client
	log       logging.Logger

	// directEndpoint is the storage URL v2 multipart bodies are POSTed to.
	// v3 needs no equivalent: its destination arrives inside the form.
	directEndpoint string
}

func NewUploader(requester channel.Requester, client *http.Client, directEndpoint string, log logging.Logger) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{requester: requester, client: client, directEndpoint: directEndpoint, log: log}
}

// OutcomeV2 is a completed v2 upload: the object key plus the decryption
// material the recipient needs.
type OutcomeV2 struct {
	ObjectKey string
	Key       []byte
	Digest    []byte
}

// OutcomeV3 is a completed v3 upload.
type OutcomeV3 struct {
	ResultV3
	Key    []byte
	Digest []byte
}

// UploadV2 encrypts source and transfers it with the direct protocol.
func (u *Uploader) UploadV2(ctx context.Context, source []byte, progress ProgressFunc) (*OutcomeV2, error) {
	enc, err := Prepare(source)
	if err != nil {
		return nil, err
	}

	raw, err := u.requester.Fetch(ctx, channel.Request{Method: http.MethodGet, Path: formPathV2})
	if err != nil {
		return nil, err
	}
	form, err := ParseFormV2(raw)
	if err != nil {
		return nil, err
	}

	uploader := NewDirectUploader(u.directEndpoint, u.client, u.log)
	key, err := uploader.Upload(ctx, enc.Ciphertext, form, progress)
	if err != nil {
		return nil, err
	}

	return &OutcomeV2{ObjectKey: key, Key: enc.Key, Digest: enc.Digest}, nil
}

// UploadV3 encrypts source and transfers it with the resumable protocol.
func (u *Uploader) UploadV3(ctx context.Context, source []byte, progress ProgressFunc) (*OutcomeV3, error) {
	enc, err := Prepare(source)
	if err != nil {
		return nil, err
	}

	raw, err := u.requester.Fetch(ctx, channel.Request{Method: http.MethodGet, Path: formPathV3})
	if err != nil {
		return nil, err
	}
	form, err := ParseFormV3(raw)
	if err != nil {
		return nil, err
	}

	uploader := NewResumableUploader(u.client, u.log)
	res, err := uploader.Upload(ctx, enc.Ciphertext, form, progress)
	if err != nil {
		return nil, err
	}

	return &OutcomeV3{ResultV3: *res, Key: enc.Key, Digest: enc.Digest}, nil
}
