// Package sigv4 implements AWS Signature Version 4 header signing for S3
// requests, built directly on SHA-256 and HMAC-SHA256, plus the matching
// server-side verification.
package sigv4

import (
	"strings"
	"time"

	"github.com/eteran/cloudfile/internal/digest"
)

const (
	Algorithm       = "AWS4-HMAC-SHA256"
	SignedHeaders   = "host;x-amz-date"
	DefaultService  = "s3"
	AmzDateFormat   = "20060102T150405Z"
	DateStampFormat = "20060102"

	scopeTerminator = "aws4_request"
	secretPrefix    = "AWS4"
)

// SigningRequest is the minimal description of a request to sign. Path must
// already be URI encoded and PayloadHash is the hex SHA-256 of the body.
type SigningRequest struct {
	Method      string
	Path        string
	Query       string
	Host        string
	Region      string
	PayloadHash string
	AccessKey   string
	SecretKey   string

	// Service defaults to "s3" when empty.
	Service string
}

func (r SigningRequest) service() string {
	if r.Service == "" {
		return DefaultService
	}
	return r.Service
}

// FormatAmzDate renders t in UTC as YYYYMMDDTHHMMSSZ.
func FormatAmzDate(t time.Time) string {
	return t.UTC().Format(AmzDateFormat)
}

// DateStamp renders the YYYYMMDD date of t in UTC.
func DateStamp(t time.Time) string {
	return t.UTC().Format(DateStampFormat)
}

// CanonicalRequest builds the canonical request signing only the host and
// x-amz-date headers.
func CanonicalRequest(r SigningRequest, amzDate string) string {
	return strings.Join([]string{
		strings.ToUpper(r.Method),
		r.Path,
		r.Query,
		"host:" + r.Host,
		"x-amz-date:" + amzDate,
		"",
		SignedHeaders,
		r.PayloadHash,
	}, "\n")
}

// CredentialScope returns <date>/<region>/<service>/aws4_request.
func CredentialScope(dateStamp string, region string, service string) string {
	return strings.Join([]string{dateStamp, region, service, scopeTerminator}, "/")
}

// StringToSign joins the algorithm, timestamp, scope and hashed canonical
// request.
func StringToSign(amzDate string, credentialScope string, hashedCanonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		amzDate,
		credentialScope,
		hashedCanonicalRequest,
	}, "\n")
}

// SigningKey derives the per-day, per-region, per-service key. Every step
// after the first is keyed by the raw output of the previous HMAC.
func SigningKey(secretKey string, dateStamp string, region string, service string) []byte {
	kDate := digest.HmacSHA256([]byte(secretPrefix+secretKey), []byte(dateStamp))
	kRegion := digest.HmacSHA256(kDate, []byte(region))
	kService := digest.HmacSHA256(kRegion, []byte(service))
	return digest.HmacSHA256(kService, []byte(scopeTerminator))
}

// Signature computes the hex signature of r at now.
func Signature(r SigningRequest, now time.Time) string {
	amzDate := FormatAmzDate(now)
	dateStamp := amzDate[:8]

	hashed := digest.SHA256Hex([]byte(CanonicalRequest(r, amzDate)))
	scope := CredentialScope(dateStamp, r.Region, r.service())
	sts := StringToSign(amzDate, scope, hashed)

	key := SigningKey(r.SecretKey, dateStamp, r.Region, r.service())
	return digest.HexEncode(digest.HmacSHA256(key, []byte(sts)))
}

// Sign returns the Authorization header value for r at now. It is a pure
// function of its inputs.
func Sign(r SigningRequest, now time.Time) string {
	amzDate := FormatAmzDate(now)
	scope := CredentialScope(amzDate[:8], r.Region, r.service())

	return Algorithm + " Credential=" + r.AccessKey + "/" + scope +
		", SignedHeaders=" + SignedHeaders +
		", Signature=" + Signature(r, now)
}
