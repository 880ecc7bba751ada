// Package origin implements a reference CDN origin: the receiving side of
// the v2 direct and v3 resumable upload protocols. It exists so the system
// is testable end to end without a third-party CDN.
package origin

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ozolins/attachup/internal/logging"
	sc "github.com/ozolins/attachup/internal/server/config"
	"github.com/ozolins/attachup/internal/server/forms"
	"github.com/ozolins/attachup/internal/server/store"
)

const totalLengthHeader = "X-Upload-Content-Length"

// session tracks one resumable upload in progress. buf accumulates the
// received bytes; len(buf) is the durable progress reported to probes.
type session struct {
	key        string
	total      int64
	buf        []byte
	complete   bool
	lastActive time.Time
}

type Origin struct {
	config *sc.Config
	issuer *forms.Issuer
	store  store.ObjectStore
	log    logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewOrigin(config *sc.Config, issuer *forms.Issuer, objects store.ObjectStore, log logging.Logger) *Origin {
	return &Origin{
		config:   config,
		issuer:   issuer,
		store:    objects,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// HandleStart opens a resumable session. The request must carry a valid
// key/exp/sig triple issued by the forms service and declare the payload
// size up front. Responds 201 with the session Location.
func (o *Origin) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	key := q.Get("key")
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil || !o.issuer.VerifyLocation(key, exp, q.Get("sig")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	total, err := strconv.ParseInt(r.Header.Get(totalLengthHeader), 10, 64)
	if err != nil || total <= 0 {
		http.Error(w, "missing or invalid "+totalLengthHeader, http.StatusBadRequest)
		return
	}

	id := uuid.NewString()

	o.mu.Lock()
	o.sessions[id] = &session{key: key, total: total, lastActive: time.Now()}
	o.mu.Unlock()

	o.log.Info(r.Context(), "resumable session opened", "session", id, "key", key, "total", total)

	w.Header().Set("Location", o.config.PublicBaseURL+"/v1/origin/session/"+id)
	w.WriteHeader(http.StatusCreated)
}

// HandleSession serves PUTs against an open session: progress probes
// (Content-Range "bytes */N") answer 308 with the received range, data PUTs
// append at the declared offset and finalize the object once complete.
func (o *Origin) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/origin/session/")

	o.mu.Lock()
	s, ok := o.sessions[id]
	if ok {
		s.lastActive = time.Now()
	}
	o.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	contentRange := r.Header.Get("Content-Range")

	if strings.HasPrefix(contentRange, "bytes */") {
		o.handleProbe(w, s)
		return
	}

	o.handleData(w, r, s, contentRange)
}

func (o *Origin) handleProbe(w http.ResponseWriter, s *session) {
	o.mu.Lock()
	received := int64(len(s.buf))
	o.mu.Unlock()

	if received > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", received-1))
	}
	w.WriteHeader(http.StatusPermanentRedirect)
}

func (o *Origin) handleData(w http.ResponseWriter, r *http.Request, s *session, contentRange string) {
	var start int64
	if contentRange != "" {
		var end, total int64
		if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil || total != s.total || end != total-1 {
			http.Error(w, "malformed content range", http.StatusBadRequest)
			return
		}
	}

	o.mu.Lock()
	received := int64(len(s.buf))
	o.mu.Unlock()

	if start != received {
		http.Error(w, fmt.Sprintf("offset %d does not match received %d", start, received), http.StatusConflict)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		// Partial body: keep what arrived so a probe can resume from it.
		o.mu.Lock()
		s.buf = append(s.buf, data...)
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	s.buf = append(s.buf, data...)
	done := int64(len(s.buf)) == s.total
	if done {
		s.complete = true
	}
	buf := s.buf
	key := s.key
	o.mu.Unlock()

	if !done {
		o.handleProbe(w, s)
		return
	}

	if err := o.store.Put(r.Context(), key, buf); err != nil {
		o.log.Error(r.Context(), "storing completed upload", "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	o.log.Info(r.Context(), "resumable upload finalized", "key", key, "size", len(buf))
	w.WriteHeader(http.StatusOK)
}

// HandleDirect accepts a v2 multipart POST. The policy signature must match
// and the file part must be present; success is 204 with no body.
func (o *Origin) HandleDirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "malformed multipart body", http.StatusBadRequest)
		return
	}

	policy := r.FormValue("policy")
	sig := r.FormValue("x-amz-signature")
	key := r.FormValue("key")
	if key == "" || !o.issuer.VerifyPolicySignature(policy, sig) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := o.store.Put(r.Context(), key, data); err != nil {
		o.log.Error(r.Context(), "storing direct upload", "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	o.log.Info(r.Context(), "direct upload stored", "key", key, "size", len(data))
	w.WriteHeader(http.StatusNoContent)
}

// PruneExpired drops sessions idle longer than the configured TTL and
// returns how many were removed.
func (o *Origin) PruneExpired(now time.Time) int {
	cutoff := now.Add(-o.config.SessionTTL)

	o.mu.Lock()
	defer o.mu.Unlock()

	var n int
	for id, s := range o.sessions {
		if s.lastActive.Before(cutoff) {
			delete(o.sessions, id)
			n++
		}
	}
	return n
}
