// Package forms issues upload credential forms. A form grants the client a
// destination object key plus the credentials needed to write it: a signed
// POST policy for the v2 direct protocol, or a signed session-open URL for
// the v3 resumable protocol.
package forms

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	sc "github.com/ozolins/attachup/internal/server/config"
)

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	policyValidity   = 15 * time.Minute
	sessionValidity  = 24 * time.Hour
)

// FormV2 is the v2 direct-upload credential response.
type FormV2 struct {
	ACL          string `json:"acl"`
	Key          string `json:"key"`
	Policy       string `json:"policy"`
	Algorithm    string `json:"algorithm"`
	Credential   string `json:"credential"`
	Date         string `json:"date"`
	Signature    string `json:"signature"`
	AttachmentID int64  `json:"attachmentId"`
}

// FormV3 is the v3 resumable-upload credential response.
type FormV3 struct {
	Key                  string            `json:"key"`
	CDN                  int               `json:"cdn"`
	SignedUploadLocation string            `json:"signedUploadLocation"`
	Headers              map[string]string `json:"headers"`
}

type policyDocument struct {
	Expiration string  `json:"expiration"`
	Conditions [][]any `json:"conditions"`
}

type Issuer struct {
	config *sc.Config
	seq    atomic.Int64
}

func NewIssuer(config *sc.Config) *Issuer {
	return &Issuer{config: config}
}

func randomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("attachments/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// sign computes the hex HMAC-SHA256 of msg under the configured signing secret.
func (i *Issuer) sign(msg string) string {
	mac := hmac.New(sha256.New, []byte(i.config.SignSecret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyLocation checks a key/expiry pair against its signature. Expired
// locations fail verification regardless of the signature.
func (i *Issuer) VerifyLocation(key string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	expected := i.sign(key + "\n" + strconv.FormatInt(exp, 10))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (i *Issuer) IssueV2() (*FormV2, error) {
	key := randomStorageKey()
	now := time.Now().UTC()
	date := now.Format("20060102T150405Z")

	doc := policyDocument{
		Expiration: now.Add(policyValidity).Format(time.RFC3339),
		Conditions: [][]any{
			{"eq", "$acl", "private"},
			{"eq", "$key", key},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	policy := base64.StdEncoding.EncodeToString(raw)

	return &FormV2{
		ACL:          "private",
		Key:          key,
		Policy:       policy,
		Algorithm:    signingAlgorithm,
		Credential:   fmt.Sprintf("%s/%s/%s/s3/aws4_request", i.config.S3RootUser, now.Format("20060102"), i.config.S3Region),
		Date:         date,
		Signature:    i.sign(policy),
		AttachmentID: i.seq.Add(1),
	}, nil
}

func (i *Issuer) IssueV3() (*FormV3, error) {
	key := randomStorageKey()
	exp := time.Now().Add(sessionValidity).Unix()

	q := url.Values{}
	q.Set("key", key)
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", i.sign(key+"\n"+strconv.FormatInt(exp, 10)))

	return &FormV3{
		Key:                  key,
		CDN:                  i.config.CDNNumber,
		SignedUploadLocation: i.config.PublicBaseURL + "/v1/origin/start?" + q.Encode(),
		Headers: map[string]string{
			"X-Upload-Content-Type": "application/octet-stream",
		},
	}, nil
}

// VerifyPolicySignature checks a v2 policy/signature pair, used by the
// reference origin's direct-upload endpoint.
func (i *Issuer) VerifyPolicySignature(policy, sig string) bool {
	return hmac.Equal([]byte(i.sign(policy)), []byte(sig))
}
