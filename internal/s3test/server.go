// Package s3test runs a small S3-compatible HTTPS endpoint for tests. It
// verifies SigV4 signatures and the declared payload hash on every request,
// accepts both virtual-hosted and path-style addressing, and keeps payloads
// in content-addressed local storage.
package s3test

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eteran/cloudfile/internal/digest"
	"github.com/eteran/cloudfile/internal/sigv4"
	"github.com/eteran/cloudfile/internal/storage"
)

const unsignedPayload = "UNSIGNED-PAYLOAD"

type S3Error struct {
	XMLName  xml.Name `xml:"Error"`
	Code     string   `xml:"Code"`
	Message  string   `xml:"Message"`
	Resource string   `xml:"Resource"`
}

type objectInfo struct {
	hash        string
	size        int64
	contentType string
	modified    time.Time
}

// RecordedRequest captures what the server received.
type RecordedRequest struct {
	Method     string
	Host       string
	RequestURI string
	Header     http.Header
}

// Server is a running fake S3 endpoint.
type Server struct {
	// BaseDomain is the endpoint host name. Requests for
	// <bucket>.<BaseDomain> are treated as virtual-hosted-style.
	BaseDomain string
	HTTP       *httptest.Server

	verifier *sigv4.Verifier
	engine   storage.Engine

	mu       sync.Mutex
	objects  map[string]map[string]objectInfo
	requests []RecordedRequest
}

// NewServer starts a TLS server that accepts requests signed with any of the
// given credentials. It is closed when the test ends.
func NewServer(t testing.TB, baseDomain string, creds sigv4.StaticCredentials) *Server {
	t.Helper()

	s := &Server{
		BaseDomain: baseDomain,
		verifier:   sigv4.NewVerifier(creds),
		engine:     storage.NewLocalFileStorage(t.TempDir()),
		objects:    make(map[string]map[string]objectInfo),
	}

	s.HTTP = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.HTTP.Close)

	return s
}

// Client returns an HTTP client that connects to this server whatever host
// the request names, so virtual-hosted URLs such as
// https://bucket.s3.example.com/key reach it.
func (s *Server) Client() *http.Client {
	addr := s.HTTP.Listener.Addr().String()
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network string, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
		},
	}
}

// Object returns the stored payload for bucket/key.
func (s *Server) Object(bucket string, key string) ([]byte, bool) {
	s.mu.Lock()
	info, ok := s.objects[bucket][key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := s.engine.GetObject(bucket, info.hash)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Requests returns every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// bucketAndKey resolves the addressing style from the Host header.
func (s *Server) bucketAndKey(r *http.Request) (string, string) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if s.BaseDomain != "" && strings.HasSuffix(host, "."+s.BaseDomain) {
		return strings.TrimSuffix(host, "."+s.BaseDomain), strings.TrimPrefix(r.URL.Path, "/")
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	return bucket, key
}

func writeS3Error(w http.ResponseWriter, code string, message string, resource string, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(S3Error{
		Code:     code,
		Message:  message,
		Resource: resource,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:     r.Method,
		Host:       r.Host,
		RequestURI: r.RequestURI,
		Header:     r.Header.Clone(),
	})
	s.mu.Unlock()

	if _, err := s.verifier.Verify(r); err != nil {
		slog.Debug("Rejected request", "method", r.Method, "path", r.URL.Path, "error", err)
		writeS3Error(w, "SignatureDoesNotMatch", err.Error(), r.URL.Path, http.StatusForbidden)
		return
	}

	bucket, key := s.bucketAndKey(r)
	if bucket == "" || key == "" {
		writeS3Error(w, "NotImplemented", "only object operations are supported", r.URL.Path, http.StatusNotImplemented)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, bucket, key)
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, bucket, key)
	default:
		writeS3Error(w, "NotImplemented", r.Method+" is not implemented.", r.URL.Path, http.StatusNotImplemented)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, "IncompleteBody", err.Error(), r.URL.Path, http.StatusBadRequest)
		return
	}

	hash := digest.SHA256Hex(data)
	if declared := r.Header.Get("X-Amz-Content-Sha256"); declared != unsignedPayload && declared != hash {
		writeS3Error(w, "XAmzContentSHA256Mismatch", "payload hash does not match", r.URL.Path, http.StatusBadRequest)
		return
	}

	if err := s.engine.PutObject(bucket, hash, data); err != nil {
		writeS3Error(w, "InternalError", err.Error(), r.URL.Path, http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string]objectInfo)
	}
	s.objects[bucket][key] = objectInfo{
		hash:        hash,
		size:        int64(len(data)),
		contentType: r.Header.Get("Content-Type"),
		modified:    time.Now().UTC(),
	}
	s.mu.Unlock()

	w.Header().Set("ETag", `"`+hash+`"`)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	s.mu.Lock()
	info, ok := s.objects[bucket][key]
	s.mu.Unlock()

	if !ok {
		writeS3Error(w, "NoSuchKey", "The specified key does not exist.", r.URL.Path, http.StatusNotFound)
		return
	}

	data, err := s.engine.GetObject(bucket, info.hash)
	if err != nil {
		writeS3Error(w, "InternalError", err.Error(), r.URL.Path, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", info.contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.size, 10))
	w.Header().Set("ETag", `"`+info.hash+`"`)
	w.Header().Set("Last-Modified", info.modified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}
