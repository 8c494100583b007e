package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"server/internal/domain"
)

// Header names used by the provider's delivery signing scheme.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

const signaturePrefix = "v1,"

// Verifier checks provider deliveries signed with HMAC-SHA256 over
// "{deliveryId}.{timestamp}.{rawBody}". Secrets may carry the provider's
// "whsec_" prefix, in which case the remainder is base64.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewVerifier builds a Verifier. tolerance bounds the accepted clock skew
// for the delivery timestamp; zero disables the freshness check.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	key := []byte(secret)
	if rest, ok := strings.CutPrefix(secret, "whsec_"); ok {
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode webhook secret: %w", err)
		}
		key = decoded
	}
	return &Verifier{secret: key, tolerance: tolerance}, nil
}

// Verify recomputes the expected signature for body under the delivery
// headers and compares in constant time. It returns domain.ErrSignatureInvalid
// on any mismatch, missing header, or stale timestamp.
func (v *Verifier) Verify(body []byte, headers http.Header, now time.Time) error {
	deliveryID := headers.Get(HeaderID)
	timestamp := headers.Get(HeaderTimestamp)
	signatures := headers.Get(HeaderSignature)
	if deliveryID == "" || timestamp == "" || signatures == "" {
		return fmt.Errorf("missing signature headers: %w", domain.ErrSignatureInvalid)
	}

	if v.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("parse webhook timestamp: %w", domain.ErrSignatureInvalid)
		}
		sent := time.Unix(unix, 0)
		if now.Sub(sent) > v.tolerance || sent.Sub(now) > v.tolerance {
			return fmt.Errorf("delivery timestamp outside tolerance: %w", domain.ErrSignatureInvalid)
		}
	}

	expected := v.sign(deliveryID, timestamp, body)

	// The header may carry several space-separated signatures during secret
	// rotation; any match accepts the delivery.
	for _, candidate := range strings.Fields(signatures) {
		encoded, ok := strings.CutPrefix(candidate, signaturePrefix)
		if !ok {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return fmt.Errorf("no signature matched: %w", domain.ErrSignatureInvalid)
}

// Sign produces the signature header value for a delivery. The server only
// verifies; signing exists for callers that construct deliveries, e.g. tests.
func (v *Verifier) Sign(deliveryID, timestamp string, body []byte) string {
	return signaturePrefix + base64.StdEncoding.EncodeToString(v.sign(deliveryID, timestamp, body))
}

func (v *Verifier) sign(deliveryID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(deliveryID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
