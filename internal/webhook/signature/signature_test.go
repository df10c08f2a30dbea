package signature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petzi-tickets/internal/webhook/signature"
)

const testSecret = "test-secret"

func TestVerify_ValidSignature(t *testing.T) {
	body := []byte(`{"event":"ticket_created","details":{"ticket":{"number":"XXXX2941J6SABA"}}}`)
	header := signature.BuildHeader(testSecret, "1693932000", body)

	verified, err := signature.Verify(testSecret, header, body)
	require.NoError(t, err)
	assert.Equal(t, "1693932000", verified.Timestamp)
	assert.Equal(t, string(body), verified.Body)
}

func TestVerify_RawBodyBytesMatter(t *testing.T) {
	// Same JSON value, different wire form: the signature is over the raw
	// bytes, so only the exact body the header was computed for verifies.
	signed := []byte(`{"a": 1, "b": 2}`)
	reEncoded := []byte(`{"a":1,"b":2}`)
	header := signature.BuildHeader(testSecret, "1693932000", signed)

	_, err := signature.Verify(testSecret, header, signed)
	require.NoError(t, err)

	_, err = signature.Verify(testSecret, header, reEncoded)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestVerify_TamperedBody(t *testing.T) {
	body := []byte(`{"event":"ticket_created"}`)
	header := signature.BuildHeader(testSecret, "1693932000", body)

	_, err := signature.Verify(testSecret, header, []byte(`{"event":"ticket_updated"}`))
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"event":"ticket_created"}`)
	header := signature.BuildHeader("other-secret", "1693932000", body)

	_, err := signature.Verify(testSecret, header, body)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestVerify_TamperedTimestamp(t *testing.T) {
	body := []byte(`{"event":"ticket_created"}`)
	header := signature.BuildHeader(testSecret, "1693932000", body)

	// Swap in a different timestamp while keeping the digest.
	tampered := "t=1700000000" + header[len("t=1693932000"):]

	_, err := signature.Verify(testSecret, tampered, body)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestVerify_OldTimestampStillAccepted(t *testing.T) {
	// No replay window: an arbitrarily old but correctly signed request
	// must still verify.
	body := []byte(`{"event":"ticket_created"}`)
	header := signature.BuildHeader(testSecret, "1", body)

	verified, err := signature.Verify(testSecret, header, body)
	require.NoError(t, err)
	assert.Equal(t, "1", verified.Timestamp)
}

func TestVerify_MissingHeader(t *testing.T) {
	_, err := signature.Verify(testSecret, "", []byte(`{}`))
	assert.ErrorIs(t, err, signature.ErrMissingSignature)
}

func TestParseHeader_Malformed(t *testing.T) {
	cases := []string{
		"t=1693932000",           // no v1
		"v1=deadbeef",            // no t
		"garbage",                // no pairs at all
		"t=,v1=",                 // empty values
		"timestamp=1,sig=abcdef", // wrong keys
	}

	for _, headerValue := range cases {
		_, err := signature.ParseHeader(headerValue)
		assert.ErrorIs(t, err, signature.ErrMalformedSignature, "header %q", headerValue)
	}
}

func TestParseHeader_IgnoresUnknownKeys(t *testing.T) {
	header, err := signature.ParseHeader("t=1693932000,v0=old,v1=deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "1693932000", header.Timestamp)
	assert.Equal(t, "deadbeef", header.Signature)
}
