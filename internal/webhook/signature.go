package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on every delivery.
const SignatureHeader = "X-Segments-Signature"

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
)

// ComputeHMAC signs "<unix>.<payload>" with secret.
func ComputeHMAC(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns the SignatureHeader value for payload at ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), ComputeHMAC(payload, secret, ts))
}

// VerifySignature checks header against payload. A zero tolerance skips the
// timestamp freshness check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var (
		ts  int64
		sig string
		err error
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			if ts, err = strconv.ParseInt(v, 10, 64); err != nil {
				return ErrMalformedSignature
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return ErrMalformedSignature
	}

	signedAt := time.Unix(ts, 0)
	if tolerance > 0 && (now.Sub(signedAt) > tolerance || signedAt.Sub(now) > tolerance) {
		return ErrSignatureExpired
	}
	expected := ComputeHMAC(payload, secret, signedAt)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrSignatureMismatch
	}
	return nil
}
