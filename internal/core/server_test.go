package core_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/core"
	"github.com/eteran/cloudfile/internal/digest"
	"github.com/eteran/cloudfile/internal/s3test"
	"github.com/eteran/cloudfile/internal/sigv4"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestServer creates a Server on a temporary data dir with the given
// options and serves its API.
func newTestServer(t *testing.T, opts ...core.ConfigOption) (*core.Server, *httptest.Server) {
	t.Helper()

	opts = append([]core.ConfigOption{core.WithDataDir(t.TempDir())}, opts...)
	srv, err := core.NewServer(core.NewConfig(opts...))
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return srv, httpSrv
}

func doRequest(t *testing.T, client *http.Client, method string, url string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, url, bytes.NewReader(body))
	require.NoError(t, err, "creating %s request", method)
	resp, err := client.Do(req)
	require.NoError(t, err, "%s %s", method, url)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v), "decoding response")
	return v
}

func TestAccountLifecycle(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodGet, httpSrv.URL+"/accounts/acct", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decode[core.AccountStatus](t, resp).Configured, "account should start unconfigured")

	body, err := json.Marshal(testAccount("ignored"))
	require.NoError(t, err)
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/acct", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[core.AccountStatus](t, resp)
	require.True(t, status.Configured)
	require.Equal(t, "acct", status.Account.ID, "path id wins over body id")
	require.Empty(t, status.Account.SecretKey, "secret must be redacted")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/accounts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[core.AccountList](t, resp)
	require.Len(t, list.Accounts, 1)
	require.Equal(t, "acct", list.Accounts[0].ID)
	require.Empty(t, list.Accounts[0].Account.SecretKey)

	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/accounts/acct", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/accounts/acct", nil)
	require.False(t, decode[core.AccountStatus](t, resp).Configured, "account should be gone")
}

func TestAccountPutInvalid(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: "{", code: core.CodeBadRequest},
		{name: "missing fields", body: `{"endpoint":"s3.example.com"}`, code: core.CodeInvalidAccount},
		{name: "endpoint with scheme", body: `{"endpoint":"https://s3.example.com","bucket":"b","region":"r","access_key":"a","secret_key":"s"}`, code: core.CodeInvalidAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/acct", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, tt.code, decode[core.ErrorResponse](t, resp).Code)
		})
	}
}

func TestUploadThroughAPI(t *testing.T) {
	t.Parallel()

	s3 := s3test.NewServer(t, "s3.example.com", sigv4.StaticCredentials{AccessKeyID: SecretAccessKey})
	srv, httpSrv := newTestServer(t,
		core.WithAccountStore(accounts.NewMemoryStore(testAccount("acct"))),
		core.WithHTTPClient(s3.Client()),
		core.WithClock(func() time.Time { return fixedNow }),
	)
	client := httpSrv.Client()

	blob := []byte("some file contents")
	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/acct/uploads/u1?name=notes%20v2.txt", blob)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[core.UploadResult](t, resp)
	key := "uploads/20250607-SHA256-" + digest.SHA256Hex(blob) + "/notes%20v2.txt"
	require.Equal(t, "u1", result.ID)
	require.Equal(t, "https://b.s3.example.com/"+key, result.URL)
	require.Zero(t, srv.Service().InFlight())

	stored, ok := s3.Object("b", "uploads/20250607-SHA256-"+digest.SHA256Hex(blob)+"/notes v2.txt")
	require.True(t, ok, "object should be stored under the decoded key")
	require.Equal(t, blob, stored)
}

func TestUploadThroughAPIGeneratesID(t *testing.T) {
	t.Parallel()

	s3 := s3test.NewServer(t, "s3.example.com", sigv4.StaticCredentials{AccessKeyID: SecretAccessKey})
	_, httpSrv := newTestServer(t,
		core.WithAccountStore(accounts.NewMemoryStore(testAccount("acct"))),
		core.WithHTTPClient(s3.Client()),
	)

	resp := doRequest(t, httpSrv.Client(), http.MethodPost, httpSrv.URL+"/accounts/acct/uploads?name=a.txt", []byte("abc"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[core.UploadResult](t, resp)
	_, err := uuid.Parse(result.ID)
	require.NoError(t, err, "generated id should be a UUID: %q", result.ID)
	require.True(t, strings.HasSuffix(result.URL, "/a.txt"), "unexpected URL %s", result.URL)
}

func TestUploadThroughAPIErrors(t *testing.T) {
	t.Parallel()

	s3 := s3test.NewServer(t, "s3.example.com", sigv4.StaticCredentials{AccessKeyID: "other-secret"})
	_, httpSrv := newTestServer(t,
		core.WithAccountStore(accounts.NewMemoryStore(testAccount("acct"))),
		core.WithHTTPClient(s3.Client()),
	)
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/acct/uploads/u1", []byte("x"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "name is required")

	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/missing/uploads/u1?name=a", []byte("x"))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, core.CodeAccountNotFound, decode[core.ErrorResponse](t, resp).Code)

	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/accounts/acct/uploads/u1?name=a", []byte("x"))
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	errResp := decode[core.ErrorResponse](t, resp)
	require.Equal(t, "ERR_UPLOAD_FAILED_HTTP_403", errResp.Code)
	require.Equal(t, http.StatusForbidden, errResp.Status)
	require.False(t, errResp.Cancelled)
}

func TestCancelThroughAPI(t *testing.T) {
	t.Parallel()

	upstream, received := blockingUpstream(t)
	srv, httpSrv := newTestServer(t,
		core.WithAccountStore(accounts.NewMemoryStore(testAccount("acct"))),
		core.WithHTTPClient(upstream),
	)
	client := httpSrv.Client()

	done := make(chan *http.Response, 1)
	go func() {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPut,
			httpSrv.URL+"/accounts/acct/uploads/u1?name=a.txt", strings.NewReader("data"))
		if err != nil {
			done <- nil
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			done <- nil
			return
		}
		done <- resp
	}()

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("upload never reached the storage service")
	}
	require.Equal(t, 1, srv.Service().InFlight())

	resp := doRequest(t, client, http.MethodDelete, httpSrv.URL+"/uploads/u1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case resp := <-done:
		require.NotNil(t, resp, "upload request failed")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		errResp := decode[core.ErrorResponse](t, resp)
		require.Equal(t, "ERR_UPLOAD_FAILED_NETWORK_ERROR", errResp.Code)
		require.True(t, errResp.Cancelled, "cancellation should be flagged")
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not return after cancellation")
	}

	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/uploads/u1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "cancelling a settled upload is a no-op")
}

// startStreamingUpload sends a PUT whose body stays open until the returned
// writer is closed. The response arrives on the returned channel.
func startStreamingUpload(t *testing.T, client *http.Client, url string) (*io.PipeWriter, <-chan *http.Response) {
	t.Helper()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, url, pr)
	require.NoError(t, err, "creating PUT request")

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			done <- nil
			return
		}
		done <- resp
	}()

	_, err = pw.Write([]byte("first part of the body"))
	require.NoError(t, err, "writing first chunk")

	return pw, done
}

func TestCancelWhileReceivingBody(t *testing.T) {
	t.Parallel()

	s3 := s3test.NewServer(t, "s3.example.com", sigv4.StaticCredentials{AccessKeyID: SecretAccessKey})
	srv, httpSrv := newTestServer(t,
		core.WithAccountStore(accounts.NewMemoryStore(testAccount("acct"))),
		core.WithHTTPClient(s3.Client()),
	)
	client := httpSrv.Client()

	pw, done := startStreamingUpload(t, client, httpSrv.URL+"/accounts/acct/uploads/u1?name=a.txt")

	require.Eventually(t, func() bool { return srv.Service().InFlight() == 1 },
		5*time.Second, 10*time.Millisecond, "upload should be registered before its body is complete")

	req, err := http.NewRequestWithContext(t.Context(), http.MethodDelete, httpSrv.URL+"/uploads/u1", nil)
	require.NoError(t, err)
	cancelResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cancelResp.Body.Close()
	require.Equal(t, http.StatusNoContent, cancelResp.StatusCode)

	select {
	case resp := <-done:
		require.NotNil(t, resp, "upload request failed")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		errResp := decode[core.ErrorResponse](t, resp)
		require.Equal(t, "ERR_UPLOAD_FAILED_NETWORK_ERROR", errResp.Code)
		require.True(t, errResp.Cancelled)
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not answer after cancellation")
	}

	// Finishing the body afterwards must not revive the upload.
	_ = pw.Close()

	require.Eventually(t, func() bool { return srv.Service().InFlight() == 0 },
		5*time.Second, 10*time.Millisecond)
	require.Empty(t, s3.Requests(), "nothing may be sent to storage after a cancel")
}

func TestUnknownAccountAnswersBeforeBodyEnds(t *testing.T) {
	t.Parallel()

	srv, httpSrv := newTestServer(t)

	_, done := startStreamingUpload(t, httpSrv.Client(), httpSrv.URL+"/accounts/missing/uploads/u1?name=a.txt")

	select {
	case resp := <-done:
		require.NotNil(t, resp, "upload request failed")
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, core.CodeAccountNotFound, decode[core.ErrorResponse](t, resp).Code)
	case <-time.After(5 * time.Second):
		t.Fatal("unknown account should be reported without waiting for the body")
	}

	require.Zero(t, srv.Service().InFlight())
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t, core.WithBasicAuth("host", "hunter2"))
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodGet, httpSrv.URL+"/accounts", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, core.CodeAccessDenied, decode[core.ErrorResponse](t, resp).Code)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, httpSrv.URL+"/accounts", nil)
	require.NoError(t, err)
	req.SetBasicAuth("host", "wrong")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequestWithContext(t.Context(), http.MethodGet, httpSrv.URL+"/accounts", nil)
	require.NoError(t, err)
	req.SetBasicAuth("host", "hunter2")
	resp, err = client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[core.AccountList](t, resp).Accounts)
}

func TestRecovererReturns500(t *testing.T) {
	t.Parallel()

	h := core.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
