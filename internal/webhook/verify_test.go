package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"server/internal/domain"
)

func signedHeaders(t *testing.T, secret []byte, deliveryID string, sent time.Time, body []byte) http.Header {
	t.Helper()
	timestamp := strconv.FormatInt(sent.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(fmt.Sprintf("%s.%s.%s", deliveryID, timestamp, body)))
	h := http.Header{}
	h.Set(HeaderID, deliveryID)
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderSignature, "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v, err := NewVerifier("test-secret", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewVerifier returned error: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"ext-1","status":"succeeded"}`)
	headers := signedHeaders(t, []byte("test-secret"), "msg_1", now, body)

	if err := v.Verify(body, headers, now); err != nil {
		t.Fatalf("Verify rejected a valid delivery: %v", err)
	}
}

func TestVerifyAcceptsWhsecPrefixedSecret(t *testing.T) {
	raw := []byte("rotated-key-material")
	v, err := NewVerifier("whsec_"+base64.StdEncoding.EncodeToString(raw), time.Minute)
	if err != nil {
		t.Fatalf("NewVerifier returned error: %v", err)
	}
	now := time.Now()
	body := []byte(`{"id":"ext-2","status":"processing"}`)
	headers := signedHeaders(t, raw, "msg_2", now, body)

	if err := v.Verify(body, headers, now); err != nil {
		t.Fatalf("Verify rejected delivery signed with decoded secret: %v", err)
	}
}

func TestVerifyAcceptsAnyOfMultipleSignatures(t *testing.T) {
	v, err := NewVerifier("current-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewVerifier returned error: %v", err)
	}
	now := time.Now()
	body := []byte(`{"id":"ext-3"}`)
	headers := signedHeaders(t, []byte("current-secret"), "msg_3", now, body)
	headers.Set(HeaderSignature, "v1,aW52YWxpZA== "+headers.Get(HeaderSignature))

	if err := v.Verify(body, headers, now); err != nil {
		t.Fatalf("Verify rejected rotation header with one valid entry: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v, _ := NewVerifier("test-secret", time.Minute)
	now := time.Now()
	headers := signedHeaders(t, []byte("test-secret"), "msg_4", now, []byte(`{"id":"ext-4"}`))

	err := v.Verify([]byte(`{"id":"ext-4","status":"failed"}`), headers, now)
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("tampered body error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v, _ := NewVerifier("right-secret", time.Minute)
	now := time.Now()
	body := []byte(`{"id":"ext-5"}`)
	headers := signedHeaders(t, []byte("wrong-secret"), "msg_5", now, body)

	if err := v.Verify(body, headers, now); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("wrong secret error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	v, _ := NewVerifier("test-secret", 5*time.Minute)
	now := time.Now()
	body := []byte(`{"id":"ext-6"}`)
	headers := signedHeaders(t, []byte("test-secret"), "msg_6", now.Add(-time.Hour), body)

	if err := v.Verify(body, headers, now); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("stale delivery error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	v, _ := NewVerifier("test-secret", time.Minute)
	if err := v.Verify([]byte(`{}`), http.Header{}, time.Now()); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("missing headers error = %v, want ErrSignatureInvalid", err)
	}
}

func TestSignRoundTripsThroughVerify(t *testing.T) {
	v, _ := NewVerifier("test-secret", time.Minute)
	now := time.Now()
	timestamp := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"id":"ext-7","status":"canceled"}`)

	h := http.Header{}
	h.Set(HeaderID, "msg_7")
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderSignature, v.Sign("msg_7", timestamp, body))

	if err := v.Verify(body, h, now); err != nil {
		t.Fatalf("Verify rejected self-signed delivery: %v", err)
	}
}
