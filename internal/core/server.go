// Package core exposes the upload service and the HTTP API a host uses to
// configure accounts, start uploads and cancel them.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/upload"
)

// maxAccountBody bounds the size of an account JSON document.
const maxAccountBody = 64 * 1024

// Server serves the host API on top of a Service.
type Server struct {
	cfg     Config
	service *Service
	tmpDir  string
}

// NewServer creates a Server. Request bodies are spooled under
// <DataDir>/tmp, or the system temp directory when DataDir is empty.
func NewServer(cfg Config) (*Server, error) {
	tmpDir := os.TempDir()
	if cfg.DataDir != "" {
		tmpDir = filepath.Join(cfg.DataDir, "tmp")
		if err := os.MkdirAll(tmpDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}

	if cfg.Accounts == nil || cfg.Registry == nil {
		return nil, errors.New("config must include an account store and a registry; use NewConfig")
	}

	return &Server{
		cfg:     cfg,
		service: NewService(cfg),
		tmpDir:  tmpDir,
	}, nil
}

// Service returns the service backing the API.
func (s *Server) Service() *Service {
	return s.service
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// writeServiceError maps service errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var uerr *upload.Error
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Code: CodeAccountNotFound, Message: err.Error()})
	case errors.Is(err, accounts.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidAccount, Message: err.Error()})
	case errors.As(err, &uerr):
		writeError(w, http.StatusBadGateway, ErrorResponse{
			Code:      uerr.Code(),
			Message:   uerr.Error(),
			Status:    uerr.StatusCode,
			Cancelled: errors.Is(err, context.Canceled),
		})
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "internal error"})
	}
}

func (s *Server) handleAccountsGet(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Accounts(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := AccountList{Accounts: make([]AccountStatus, 0, len(list))}
	for _, a := range list {
		resp.Accounts = append(resp.Accounts, AccountStatus{ID: a.ID, Configured: true, Account: &a})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAccountGet always answers 200 so a host can poll the configured
// flag for accounts it knows about but has not stored yet.
func (s *Server) handleAccountGet(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	a, err := s.service.Account(ctx, id)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		writeJSON(w, http.StatusOK, AccountStatus{ID: id, Configured: false})
	case err != nil:
		writeServiceError(w, err)
	default:
		writeJSON(w, http.StatusOK, AccountStatus{ID: id, Configured: true, Account: &a})
	}
}

func (s *Server) handleAccountPut(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	var a accounts.Account
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAccountBody)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "invalid account JSON: " + err.Error()})
		return
	}
	a.ID = id

	if err := s.service.SaveAccount(ctx, a); err != nil {
		writeServiceError(w, err)
		return
	}

	redacted := a.Redacted()
	writeJSON(w, http.StatusOK, AccountStatus{ID: id, Configured: true, Account: &redacted})
}

func (s *Server) handleAccountDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteAccount(ctx, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// spoolBody copies the request body to a temporary file so it can be hashed
// and then sent. The copy stops early once ctx is cancelled.
func (s *Server) spoolBody(ctx context.Context, r *http.Request) (*os.File, error) {
	f, err := os.CreateTemp(s.tmpDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, &contextReader{ctx: ctx, r: r.Body}); err != nil {
		removeTemp(f)
		return nil, fmt.Errorf("read request body: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		removeTemp(f)
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}

	return f, nil
}

func removeTemp(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (s *Server) handleUploadPut(ctx context.Context, w http.ResponseWriter, r *http.Request, accountID string, id string) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: "name query parameter is required"})
		return
	}

	// Answer without draining the rest of the body when the upload ends
	// early (unknown account, cancellation).
	rc := http.NewResponseController(w)
	_ = rc.EnableFullDuplex()

	pending, err := s.service.BeginUpload(ctx, accountID, id, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer pending.Close()

	// A cancel that arrives while the body is still streaming unblocks
	// the pending read.
	stop := context.AfterFunc(pending.Context(), func() {
		_ = rc.SetReadDeadline(time.Now())
	})
	f, err := s.spoolBody(pending.Context(), r)
	stop()

	if cerr := pending.Err(); cerr != nil {
		if f != nil {
			removeTemp(f)
		}
		slog.Info("Upload cancelled while receiving body", "upload_id", id)
		writeServiceError(w, cerr)
		return
	}
	if err != nil {
		slog.Error("Failed to spool upload", "upload_id", id, "error", err)
		writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: err.Error()})
		return
	}
	defer removeTemp(f)

	url, err := pending.Send(f)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResult{ID: id, URL: url})
}

// handleUploadDelete cancels an upload. Unknown ids are not an error.
func (s *Server) handleUploadDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	s.service.CancelUpload(id)
	w.WriteHeader(http.StatusNoContent)
}
