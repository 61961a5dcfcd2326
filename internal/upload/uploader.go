// Package upload performs signed single-PUT uploads to S3-compatible stores
// and tracks in-flight uploads so they can be cancelled by id.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/digest"
	"github.com/eteran/cloudfile/internal/sigv4"
)

// maxBodyCapture bounds how much of a response body is kept for logging.
const maxBodyCapture = 64 * 1024

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Uploader signs and sends one PUT per upload.
type Uploader struct {
	Client Doer
	// Now supplies the signing timestamp. Defaults to time.Now.
	Now func() time.Time
}

// NewUploader creates an Uploader sending requests through client, or
// http.DefaultClient if client is nil.
func NewUploader(client Doer) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{Client: client, Now: time.Now}
}

func (u *Uploader) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}

// Upload stores body in the account's bucket under a content-addressed key
// and returns the object's URL. Cancelling ctx aborts the transfer with a
// KindNetwork error. No retries are attempted.
func (u *Uploader) Upload(ctx context.Context, account accounts.Account, name string, body io.ReadSeeker) (string, error) {
	contentHash, size, err := digest.SHA256HexReader(body)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Err: fmt.Errorf("hash %q: %w", name, err)}
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", &Error{Kind: KindUnknown, Err: fmt.Errorf("rewind %q: %w", name, err)}
	}

	// Hashing a large file can take a while; honour a cancel that arrived
	// in the meantime before touching the network.
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}

	// The key and the signature must share one timestamp.
	now := u.now()
	amzDate := sigv4.FormatAmzDate(now)
	key := BuildKey(account, name, contentHash, now)
	host := account.Host()

	authorization := sigv4.Sign(sigv4.SigningRequest{
		Method:      http.MethodPut,
		Path:        "/" + key,
		Query:       "",
		Host:        host,
		Region:      account.Region,
		PayloadHash: contentHash,
		AccessKey:   account.AccessKey,
		SecretKey:   account.SecretKey,
	}, now)

	objectURL := "https://" + host + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, io.NopCloser(body))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Err: fmt.Errorf("build request: %w", err)}
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-SHA256", contentHash)
	req.Header.Set("Authorization", authorization)

	log := slog.With("host", host, "key", key, "size", humanize.Bytes(uint64(size)))
	log.Debug("Uploading object")

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	if resp == nil {
		return "", &Error{Kind: KindUnknown}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyCapture))

	switch {
	case resp.StatusCode == http.StatusOK:
		log.Debug("Upload accepted", "response", string(respBody))
		return objectURL, nil
	case resp.StatusCode != 0:
		return "", &Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Body: respBody}
	default:
		return "", &Error{Kind: KindUnknown}
	}
}
