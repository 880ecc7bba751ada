package origin

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozolins/attachup/internal/logging"
	sc "github.com/ozolins/attachup/internal/server/config"
	"github.com/ozolins/attachup/internal/server/forms"
	"github.com/ozolins/attachup/internal/server/store"
)

func newOriginForTest(t *testing.T) (*Origin, *forms.Issuer, *store.MemStore, *httptest.Server) {
	t.Helper()

	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.SignSecret = "origin-test-secret"

	issuer := forms.NewIssuer(cfg)
	objects := store.NewMemStore()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	o := NewOrigin(cfg, issuer, objects, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/origin/start", o.HandleStart)
	mux.HandleFunc("/v1/origin/session/", o.HandleSession)
	mux.HandleFunc("/v1/attachments/upload", o.HandleDirect)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg.PublicBaseURL = srv.URL
	return o, issuer, objects, srv
}

func openSession(t *testing.T, issuer *forms.Issuer, srv *httptest.Server, total int64) (string, string) {
	t.Helper()

	form, err := issuer.IssueV3()
	require.NoError(t, err)

	u, err := url.Parse(form.SignedUploadLocation)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/origin/start?"+u.RawQuery, nil)
	require.NoError(t, err)
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(total, 10))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.NotEmpty(t, loc)
	return loc, form.Key
}

func TestHandleStart_RejectsBadSignature(t *testing.T) {
	_, _, _, srv := newOriginForTest(t)

	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/v1/origin/start?key=k&exp="+strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)+"&sig=bogus", nil)
	require.NoError(t, err)
	req.Header.Set("X-Upload-Content-Length", "10")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleStart_RequiresTotalLength(t *testing.T) {
	_, issuer, _, srv := newOriginForTest(t)

	form, err := issuer.IssueV3()
	require.NoError(t, err)
	u, err := url.Parse(form.SignedUploadLocation)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/origin/start?"+u.RawQuery, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResumable_SingleShot(t *testing.T) {
	_, issuer, objects, srv := newOriginForTest(t)

	payload := []byte("resumable-object-payload")
	loc, key := openSession(t, issuer, srv, int64(len(payload)))

	req, err := http.NewRequest(http.MethodPut, loc, bytes.NewReader(payload))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := objects.Get(req.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestResumable_ProbeAndResume(t *testing.T) {
	o, issuer, objects, srv := newOriginForTest(t)

	payload := []byte("0123456789abcdef")
	total := int64(len(payload))
	loc, key := openSession(t, issuer, srv, total)

	// Seed partial progress directly, as if a prior PUT broke mid-transfer.
	id := strings.TrimPrefix(loc, srv.URL+"/v1/origin/session/")
	o.mu.Lock()
	o.sessions[id].buf = append([]byte(nil), payload[:6]...)
	o.mu.Unlock()

	probe, err := http.NewRequest(http.MethodPut, loc, nil)
	require.NoError(t, err)
	probe.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := http.DefaultClient.Do(probe)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	assert.Equal(t, "bytes=0-5", resp.Header.Get("Range"))

	rest, err := http.NewRequest(http.MethodPut, loc, bytes.NewReader(payload[6:]))
	require.NoError(t, err)
	rest.Header.Set("Content-Range", fmt.Sprintf("bytes 6-%d/%d", total-1, total))

	resp, err = http.DefaultClient.Do(rest)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := objects.Get(rest.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestResumable_ProbeOnFreshSession_NoRangeHeader(t *testing.T) {
	_, issuer, _, srv := newOriginForTest(t)

	loc, _ := openSession(t, issuer, srv, 100)

	probe, err := http.NewRequest(http.MethodPut, loc, nil)
	require.NoError(t, err)
	probe.Header.Set("Content-Range", "bytes */100")

	resp, err := http.DefaultClient.Do(probe)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Range"))
}

func TestResumable_OffsetMismatch(t *testing.T) {
	_, issuer, _, srv := newOriginForTest(t)

	loc, _ := openSession(t, issuer, srv, 10)

	req, err := http.NewRequest(http.MethodPut, loc, bytes.NewReader([]byte("56789")))
	require.NoError(t, err)
	req.Header.Set("Content-Range", "bytes 5-9/10")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumable_UnknownSession(t *testing.T) {
	_, _, _, srv := newOriginForTest(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/origin/session/nope", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleDirect(t *testing.T) {
	_, issuer, objects, srv := newOriginForTest(t)

	form, err := issuer.IssueV2()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("acl", form.ACL))
	require.NoError(t, mw.WriteField("key", form.Key))
	require.NoError(t, mw.WriteField("policy", form.Policy))
	require.NoError(t, mw.WriteField("x-amz-algorithm", form.Algorithm))
	require.NoError(t, mw.WriteField("x-amz-credential", form.Credential))
	require.NoError(t, mw.WriteField("x-amz-date", form.Date))
	require.NoError(t, mw.WriteField("x-amz-signature", form.Signature))
	fw, err := mw.CreateFormFile("file", "attachment")
	require.NoError(t, err)
	_, err = fw.Write([]byte("direct-object"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/attachments/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := objects.Get(req.Context(), form.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("direct-object"), got)
}

func TestHandleDirect_BadSignature(t *testing.T) {
	_, issuer, _, srv := newOriginForTest(t)

	form, err := issuer.IssueV2()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("key", form.Key))
	require.NoError(t, mw.WriteField("policy", form.Policy))
	require.NoError(t, mw.WriteField("x-amz-signature", "forged"))
	fw, err := mw.CreateFormFile("file", "attachment")
	require.NoError(t, err)
	_, err = fw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/attachments/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPruneExpired(t *testing.T) {
	o, issuer, _, srv := newOriginForTest(t)
	o.config.SessionTTL = time.Hour

	openSession(t, issuer, srv, 10)
	openSession(t, issuer, srv, 20)

	assert.Equal(t, 0, o.PruneExpired(time.Now()))
	assert.Equal(t, 2, o.PruneExpired(time.Now().Add(2*time.Hour)))

	o.mu.Lock()
	n := len(o.sessions)
	o.mu.Unlock()
	assert.Equal(t, 0, n)
}
