package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the webhook signature taxonomy. The HTTP layer maps
// all of them to 400.
var (
	ErrMissingSignature   = errors.New("missing Petzi-Signature header")
	ErrMalformedSignature = errors.New("invalid Petzi-Signature format")
	ErrInvalidSignature   = errors.New("invalid HMAC signature")
)

// Header is the parsed form of the Petzi-Signature header:
//
//	Petzi-Signature: t=<unix_timestamp>,v1=<hex_hmac_sha256>
type Header struct {
	Timestamp string
	Signature string
}

// VerifiedRequest is returned once a request passed signature verification.
type VerifiedRequest struct {
	Timestamp string
	Body      string
}

// ParseHeader splits the comma separated key=value pairs and extracts the
// "t" and "v1" fields. Unknown keys are ignored so the provider can add new
// signature versions without breaking us.
func ParseHeader(headerValue string) (Header, error) {
	if headerValue == "" {
		return Header{}, ErrMissingSignature
	}

	fields := map[string]string{}
	for _, part := range strings.Split(headerValue, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			fields[key] = value
		}
	}

	header := Header{
		Timestamp: fields["t"],
		Signature: fields["v1"],
	}
	if header.Timestamp == "" || header.Signature == "" {
		return Header{}, ErrMalformedSignature
	}
	return header, nil
}

// Sign computes the hex encoded HMAC-SHA256 digest the provider sends:
// HMAC(secret, "<timestamp>.<rawBody>"). The raw body bytes go in as-is;
// re-serializing the JSON would break verification whenever key order or
// whitespace differs from the wire form.
func Sign(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the Petzi-Signature header against the raw request body.
// It accepts any timestamp value; no replay window is enforced. The caller
// gets the parsed timestamp back and may layer freshness checks on top.
func Verify(secret, headerValue string, rawBody []byte) (VerifiedRequest, error) {
	header, err := ParseHeader(headerValue)
	if err != nil {
		return VerifiedRequest{}, err
	}

	expected := Sign(secret, header.Timestamp, rawBody)

	// hmac.Equal compares in constant time, same accept/reject behavior as
	// a plain string compare without the timing side-channel.
	if !hmac.Equal([]byte(expected), []byte(header.Signature)) {
		return VerifiedRequest{}, ErrInvalidSignature
	}

	return VerifiedRequest{
		Timestamp: header.Timestamp,
		Body:      string(rawBody),
	}, nil
}

// BuildHeader renders a Petzi-Signature header value for the given secret,
// timestamp and body, the counterpart of Verify.
func BuildHeader(secret, timestamp string, rawBody []byte) string {
	return fmt.Sprintf("t=%s,v1=%s", timestamp, Sign(secret, timestamp, rawBody))
}
