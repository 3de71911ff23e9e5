package admission

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gridsim/internal/constants"
	"gridsim/internal/topic"
	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/models"
)

// CredentialVerifier checks one kind of header-carried credential against
// the topic secret.
type CredentialVerifier interface {
	// Header is the request header the credential travels in.
	Header() string
	Verify(secret, supplied string) bool
}

// KeyVerifier accepts the raw shared key, compared exactly.
type KeyVerifier struct{}

func (KeyVerifier) Header() string { return constants.HeaderSasKey }

func (KeyVerifier) Verify(secret, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) == 1
}

// TokenVerifier accepts a shared access signature of the form
// r=<resource>&e=<expiry>&s=<signature>, where the signature is the
// base64 HMAC-SHA256 of "r=<resource>&e=<expiry>" (both url-encoded) keyed
// with the topic secret.
type TokenVerifier struct {
	Now func() time.Time
}

func (TokenVerifier) Header() string { return constants.HeaderSasToken }

func (v TokenVerifier) Verify(secret, supplied string) bool {
	values, err := url.ParseQuery(strings.TrimSpace(supplied))
	if err != nil {
		return false
	}

	resource := values.Get("r")
	expiry := values.Get("e")
	signature := strings.ReplaceAll(values.Get("s"), " ", "+")
	if resource == "" || expiry == "" || signature == "" {
		return false
	}

	if exp, ok := parseTokenExpiry(expiry); ok && exp.Before(v.now()) {
		return false
	}

	// Publishers built on .NET percent-encode with lowercase hex, Go with
	// uppercase; either spelling of the signed string is accepted.
	for _, encode := range []func(string) string{url.QueryEscape, queryEscapeLower} {
		expected := signSas(secret, "r="+encode(resource)+"&e="+encode(expiry))
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

func (v TokenVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// NewSasToken builds a token that TokenVerifier accepts for the given key.
func NewSasToken(resource string, expiry time.Time, secret string) string {
	e := expiry.UTC().Format(time.RFC3339)
	unsigned := "r=" + url.QueryEscape(resource) + "&e=" + url.QueryEscape(e)
	return unsigned + "&s=" + url.QueryEscape(signSas(secret, unsigned))
}

func signSas(secret, unsigned string) string {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key = []byte(secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(unsigned))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

var percentEscape = regexp.MustCompile(`%[0-9A-F]{2}`)

func queryEscapeLower(s string) string {
	return percentEscape.ReplaceAllStringFunc(url.QueryEscape(s), strings.ToLower)
}

const invariantDateLayout = "1/2/2006 3:04:05 PM"

func parseTokenExpiry(value string) (time.Time, bool) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	if ts, err := time.Parse(invariantDateLayout, value); err == nil {
		return ts, true
	}
	return models.ParseEventTime(value)
}

// CredentialValidator passes a request when the topic has no key, or when
// at least one supplied credential verifies against it.
type CredentialValidator struct {
	verifiers []CredentialVerifier
}

func NewCredentialValidator(verifiers ...CredentialVerifier) *CredentialValidator {
	if len(verifiers) == 0 {
		verifiers = []CredentialVerifier{KeyVerifier{}, TokenVerifier{}}
	}
	return &CredentialValidator{verifiers: verifiers}
}

func (v *CredentialValidator) Validate(t topic.Topic, header http.Header) error {
	if !t.HasKey() {
		return nil
	}

	for _, verifier := range v.verifiers {
		for _, supplied := range headerValues(header, verifier.Header()) {
			if verifier.Verify(t.Key, supplied) {
				return nil
			}
		}
	}

	return apperrors.ErrCredentialInvalid
}
