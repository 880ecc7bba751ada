package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozolins/attachup/internal/common"
)

// stubSleep replaces the inter-retry delay and records each wait.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var mu sync.Mutex
	waits := &[]time.Duration{}
	orig := sleepCtx
	sleepCtx = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*waits = append(*waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { sleepCtx = orig })
	return waits
}

// fakeOrigin implements the resumable wire contract for tests: session open
// (201+Location), ranged data PUTs, and zero-length progress probes.
type fakeOrigin struct {
	t    *testing.T
	base string

	mu sync.Mutex

	// remaining data PUTs to kill at the socket level
	putFailures int

	// byte count reported by probes; -1 answers probes with probeStatus
	// and no Range header
	progress    int64
	probeStatus int

	probeRange string // overrides the Range header verbatim when set

	sessionOpens int
	dataPuts     int
	probes       int

	lastContentRange  string
	lastContentLength int64
	lastBodyLen       int64
	lastFirstByte     byte
}

func newFakeOrigin(t *testing.T) (*fakeOrigin, *httptest.Server) {
	o := &fakeOrigin{t: t, progress: -1, probeStatus: http.StatusOK}
	ts := httptest.NewServer(o)
	t.Cleanup(ts.Close)
	o.base = ts.URL
	return o, ts
}

func (o *fakeOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case r.Method == http.MethodPost:
		o.sessionOpens++
		w.Header().Set("Location", o.base+"/session/xyz")
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPut && strings.HasPrefix(r.Header.Get("Content-Range"), "bytes */"):
		o.probes++
		if o.probeRange != "" {
			w.Header().Set("Range", o.probeRange)
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		if o.progress < 0 {
			w.WriteHeader(o.probeStatus)
			return
		}
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", o.progress-1))
		w.WriteHeader(http.StatusPermanentRedirect)

	case r.Method == http.MethodPut:
		o.dataPuts++
		if o.putFailures > 0 {
			o.putFailures--
			hj, ok := w.(http.Hijacker)
			require.True(o.t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(o.t, err)
			conn.Close()
			return
		}
		o.lastContentRange = r.Header.Get("Content-Range")
		o.lastContentLength = r.ContentLength
		body, _ := io.ReadAll(r.Body)
		o.lastBodyLen = int64(len(body))
		if len(body) > 0 {
			o.lastFirstByte = body[0]
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testFormV3(sessionOpenURL string) *FormV3 {
	return &FormV3{
		Key:                  "node/abc",
		CDN:                  3,
		SignedUploadLocation: sessionOpenURL,
		Headers:              map[string]string{"X-Signed": "sig"},
	}
}

func patternedPayload(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func TestResumableUpload_FirstAttemptSucceeds(t *testing.T) {
	stubSleep(t)
	o, ts := newFakeOrigin(t)

	u := NewResumableUploader(nil, nil)
	payload := patternedPayload(4096)

	var fractions []float64
	res, err := u.Upload(context.Background(), payload, testFormV3(ts.URL+"/open"), func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	assert.Equal(t, "node/abc", res.StorageKey)
	assert.Equal(t, 3, res.CDN)
	assert.False(t, res.CompletedAt.IsZero())

	assert.Equal(t, 1, o.sessionOpens)
	assert.Equal(t, 1, o.dataPuts)
	assert.Equal(t, 0, o.probes, "no probe on the first attempt")
	assert.Empty(t, o.lastContentRange, "no Content-Range on a from-zero PUT")
	assert.Equal(t, int64(4096), o.lastContentLength)
	assert.Equal(t, int64(4096), o.lastBodyLen)

	require.NotEmpty(t, fractions)
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)
}

// TestResumableUpload_ResumesFromProbedOffset pins the resume range math:
// a probe reporting Range: bytes=0-2359295 on a 7351375-byte payload must
// produce a PUT of bytes 2359296-7351374/7351375 with Content-Length 4992079.
func TestResumableUpload_ResumesFromProbedOffset(t *testing.T) {
	waits := stubSleep(t)
	o, ts := newFakeOrigin(t)

	const total = 7351375
	const received = 2359296

	o.putFailures = 1
	o.progress = received

	u := NewResumableUploader(nil, nil)
	payload := patternedPayload(total)

	res, err := u.Upload(context.Background(), payload, testFormV3(ts.URL+"/open"), nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, o.probes)
	assert.Equal(t, 2, o.dataPuts)
	assert.Equal(t, "bytes 2359296-7351374/7351375", o.lastContentRange)
	assert.Equal(t, int64(4992079), o.lastContentLength)
	assert.Equal(t, int64(4992079), o.lastBodyLen)
	assert.Equal(t, byte(received%256), o.lastFirstByte, "resumed body must start at the recovered offset")

	require.Len(t, *waits, 1)
	assert.Equal(t, uploadRetryDelay, (*waits)[0])
}

func TestResumableUpload_ProbeSaysComplete_NoFurtherPut(t *testing.T) {
	stubSleep(t)
	o, ts := newFakeOrigin(t)

	const total = 1024
	o.putFailures = 1
	o.progress = total

	u := NewResumableUploader(nil, nil)
	res, err := u.Upload(context.Background(), patternedPayload(total), testFormV3(ts.URL+"/open"), nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, o.dataPuts, "no second PUT when the origin already has everything")
}

func TestResumableUpload_ProbeExceedsTotal_ProtocolViolation(t *testing.T) {
	stubSleep(t)
	o, ts := newFakeOrigin(t)

	const total = 1024
	o.putFailures = 1
	o.progress = total + 1

	u := NewResumableUploader(nil, nil)
	_, err := u.Upload(context.Background(), patternedPayload(total), testFormV3(ts.URL+"/open"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProtocolViolation)
	assert.Equal(t, 1, o.dataPuts, "no further requests after a protocol violation")
}

func TestResumableUpload_RetryBound(t *testing.T) {
	waits := stubSleep(t)
	o, ts := newFakeOrigin(t)

	// More failures available than the budget allows attempts.
	o.putFailures = 17

	u := NewResumableUploader(nil, nil)
	_, err := u.Upload(context.Background(), patternedPayload(2048), testFormV3(ts.URL+"/open"), nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, common.ErrExhaustedRetries)
	assert.ErrorIs(t, err, common.ErrConnectivity, "terminal error carries the last connectivity failure")

	assert.Equal(t, maxUploadAttempts, o.dataPuts, "attempts are capped")
	assert.Equal(t, maxUploadAttempts-1, o.probes, "every retry is preceded by a probe")

	require.Len(t, *waits, maxUploadAttempts-1, "every retry is preceded by the fixed delay")
	for _, d := range *waits {
		assert.Equal(t, uploadRetryDelay, d)
	}
}

func TestResumableUpload_NonConnectivityPutIsFatal(t *testing.T) {
	stubSleep(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", "http://"+r.Host+"/session/xyz")
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer ts.Close()

	u := NewResumableUploader(nil, nil)
	_, err := u.Upload(context.Background(), patternedPayload(128), testFormV3(ts.URL+"/open"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidSessionResponse)
	assert.False(t, errors.Is(err, common.ErrExhaustedRetries))
}

func TestOpenSession_Non201IsInvalid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u := NewResumableUploader(nil, nil)
	_, err := u.openSession(context.Background(), testFormV3(ts.URL+"/open"), 100)
	assert.ErrorIs(t, err, common.ErrInvalidSessionResponse)
}

func TestOpenSession_MissingLocationIsInvalid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	u := NewResumableUploader(nil, nil)
	_, err := u.openSession(context.Background(), testFormV3(ts.URL+"/open"), 100)
	assert.ErrorIs(t, err, common.ErrInvalidSessionResponse)
}

func TestOpenSession_SendsFormHeadersAndTotal(t *testing.T) {
	var gotSigned, gotTotal, gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSigned = r.Header.Get("X-Signed")
		gotTotal = r.Header.Get(TotalLengthHeader)
		gotCT = r.Header.Get("Content-Type")
		w.Header().Set("Location", "http://"+r.Host+"/session/xyz")
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	u := NewResumableUploader(nil, nil)
	loc, err := u.openSession(context.Background(), testFormV3(ts.URL+"/open"), 12345)
	require.NoError(t, err)
	assert.NotEmpty(t, loc)
	assert.Equal(t, "sig", gotSigned)
	assert.Equal(t, "12345", gotTotal)
	assert.Equal(t, "application/octet-stream", gotCT)
}

func TestOpenSession_ConnectivityRetriesExactly4(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		hj := w.(http.Hijacker)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer ts.Close()

	u := NewResumableUploader(nil, nil)
	_, err := u.openSession(context.Background(), testFormV3(ts.URL+"/open"), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConnectivity)
	assert.Equal(t, maxSessionOpenAttempts, attempts)
}

func TestResolveProgress(t *testing.T) {
	tests := []struct {
		name   string
		status int
		rng    string
		want   int64
	}{
		{"well-formed 308", http.StatusPermanentRedirect, "bytes=0-2359295", 2359296},
		{"zero progress", http.StatusPermanentRedirect, "bytes=0-0", 1},
		{"not 308", http.StatusOK, "bytes=0-100", 0},
		{"308 without range", http.StatusPermanentRedirect, "", 0},
		{"wrong prefix", http.StatusPermanentRedirect, "bytes=1-100", 0},
		{"non-numeric suffix", http.StatusPermanentRedirect, "bytes=0-abc", 0},
		{"server error", http.StatusInternalServerError, "", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotCR, gotCL string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCR = r.Header.Get("Content-Range")
				gotCL = fmt.Sprint(r.ContentLength)
				if tc.rng != "" {
					w.Header().Set("Range", tc.rng)
				}
				w.WriteHeader(tc.status)
			}))
			defer ts.Close()

			u := NewResumableUploader(nil, nil)
			got, err := u.ResolveProgress(context.Background(), ts.URL+"/session/xyz", 7351375)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "bytes */7351375", gotCR)
			assert.Equal(t, "0", gotCL)
		})
	}
}

func TestResolveProgress_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	u := NewResumableUploader(nil, nil)
	_, err := u.ResolveProgress(context.Background(), ts.URL+"/session/xyz", 100)
	assert.ErrorIs(t, err, common.ErrConnectivity)
}

func TestResumableUpload_CancelledContext(t *testing.T) {
	stubSleep(t)
	_, ts := newFakeOrigin(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := NewResumableUploader(nil, nil)
	_, err := u.Upload(ctx, patternedPayload(64), testFormV3(ts.URL+"/open"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
