package sigv4

import (
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/eteran/cloudfile/internal/digest"
)

var (
	ErrAuthMissing       = errors.New("sigv4: missing authorization")
	ErrAuthMalformed     = errors.New("sigv4: malformed authorization")
	ErrUnknownAccessKey  = errors.New("sigv4: unknown access key")
	ErrSignatureMismatch = errors.New("sigv4: signature mismatch")
)

// CredentialsLookup resolves the secret key for an access key.
type CredentialsLookup interface {
	SecretKey(accessKey string) (string, bool)
}

// StaticCredentials is a CredentialsLookup backed by a fixed map of access
// key to secret key.
type StaticCredentials map[string]string

func (c StaticCredentials) SecretKey(accessKey string) (string, bool) {
	secret, ok := c[accessKey]
	return secret, ok
}

// Verifier checks header-based SigV4 signatures on incoming requests.
type Verifier struct {
	Credentials CredentialsLookup
}

// NewVerifier creates a Verifier resolving secrets through creds.
func NewVerifier(creds CredentialsLookup) *Verifier {
	return &Verifier{Credentials: creds}
}

// Authorization is the parsed form of a SigV4 Authorization header.
type Authorization struct {
	AccessKey     string
	DateStamp     string
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorization splits a SigV4 Authorization header into its parts.
func ParseAuthorization(header string) (Authorization, error) {
	const prefix = Algorithm + " "

	if header == "" {
		return Authorization{}, ErrAuthMissing
	}
	if !strings.HasPrefix(header, prefix) {
		return Authorization{}, ErrAuthMalformed
	}

	params := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	kv := make(map[string]string, 3)
	for _, p := range strings.Split(params, ",") {
		p = strings.TrimSpace(p)
		idx := strings.IndexByte(p, '=')
		if idx <= 0 {
			continue
		}
		kv[p[:idx]] = strings.TrimSpace(p[idx+1:])
	}

	credStr, okCred := kv["Credential"]
	signedHeadersStr, okSigned := kv["SignedHeaders"]
	signature, okSig := kv["Signature"]
	if !okCred || !okSigned || !okSig {
		return Authorization{}, ErrAuthMalformed
	}

	credParts := strings.Split(credStr, "/")
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return Authorization{}, ErrAuthMalformed
	}
	if credParts[2] == "" || credParts[3] == "" {
		return Authorization{}, ErrAuthMalformed
	}

	return Authorization{
		AccessKey:     credParts[0],
		DateStamp:     credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeadersStr, ";"),
		Signature:     signature,
	}, nil
}

func canonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}

	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, URIEncode(k, true)+"="+URIEncode(v, true))
		}
	}

	return strings.Join(parts, "&")
}

func canonicalHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// BuildCanonicalRequest builds the canonical request for an arbitrary set of
// signed headers, as received by a server.
func BuildCanonicalRequest(r *http.Request, signedHeaderNames []string, payloadHash string) string {
	// The path is signed exactly as sent, so an escaped '/' in a key
	// segment stays %2F.
	canonicalURI := r.URL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	lowerNames := make([]string, 0, len(signedHeaderNames))
	var hdrBuilder strings.Builder
	for _, h := range signedHeaderNames {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		lowerNames = append(lowerNames, name)

		var value string
		if name == "host" {
			value = r.Host
			if value == "" {
				value = r.URL.Host
			}
		} else {
			value = r.Header.Get(name)
		}
		hdrBuilder.WriteString(name)
		hdrBuilder.WriteString(":")
		hdrBuilder.WriteString(canonicalHeaderValue(value))
		hdrBuilder.WriteString("\n")
	}

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteString("\n")
	b.WriteString(canonicalURI)
	b.WriteString("\n")
	b.WriteString(canonicalQueryString(r.URL))
	b.WriteString("\n")
	b.WriteString(hdrBuilder.String())
	b.WriteString("\n")
	b.WriteString(strings.Join(lowerNames, ";"))
	b.WriteString("\n")
	b.WriteString(payloadHash)

	return b.String()
}

// Verify checks the Authorization header of r and returns the access key
// that signed it.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	auth, err := ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}

	secret, ok := v.Credentials.SecretKey(auth.AccessKey)
	if !ok {
		return "", ErrUnknownAccessKey
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if len(amzDate) < 8 || amzDate[:8] != auth.DateStamp {
		return "", ErrAuthMalformed
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		return "", ErrAuthMalformed
	}

	canonicalReq := BuildCanonicalRequest(r, auth.SignedHeaders, payloadHash)
	scope := CredentialScope(auth.DateStamp, auth.Region, auth.Service)
	stringToSign := StringToSign(amzDate, scope, digest.SHA256Hex([]byte(canonicalReq)))

	key := SigningKey(secret, auth.DateStamp, auth.Region, auth.Service)
	computed := digest.HmacSHA256(key, []byte(stringToSign))

	decoded, err := hex.DecodeString(auth.Signature)
	if err != nil {
		return "", ErrAuthMalformed
	}

	if !hmac.Equal(computed, decoded) {
		return "", ErrSignatureMismatch
	}

	return auth.AccessKey, nil
}
