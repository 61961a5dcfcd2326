package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/upload"
)

// Service is the entry point the host calls when an upload is requested or
// cancelled, and when accounts are configured or removed.
type Service struct {
	accounts accounts.Store
	registry *upload.Registry
	uploader *upload.Uploader
}

func NewService(cfg Config) *Service {
	uploader := upload.NewUploader(cfg.Client)
	if cfg.Clock != nil {
		uploader.Now = cfg.Clock
	}

	return &Service{
		accounts: cfg.Accounts,
		registry: cfg.Registry,
		uploader: uploader,
	}
}

// PendingUpload is an upload that is registered, and so cancellable by id,
// but has not sent anything yet.
type PendingUpload struct {
	service *Service
	account accounts.Account
	upload  *upload.Upload
	ctx     context.Context
	log     *slog.Logger
}

// BeginUpload looks up the account and registers the upload under id. An
// unknown account fails immediately and nothing is registered. The caller
// must Close the returned upload once it settles.
func (s *Service) BeginUpload(ctx context.Context, accountID string, id string, name string) (*PendingUpload, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	u, uploadCtx := upload.NewUpload(ctx, id, name)
	s.registry.Register(u)

	return &PendingUpload{
		service: s,
		account: account,
		upload:  u,
		ctx:     uploadCtx,
		log:     slog.With("upload_id", id, "account", accountID, "name", name),
	}, nil
}

// Context is cancelled by CancelUpload for this upload's id.
func (p *PendingUpload) Context() context.Context {
	return p.ctx
}

// Err returns a KindNetwork error wrapping the cancellation cause once the
// upload has been cancelled, and nil before that.
func (p *PendingUpload) Err() error {
	if err := p.ctx.Err(); err != nil {
		return &upload.Error{Kind: upload.KindNetwork, Err: err}
	}
	return nil
}

// Send uploads blob and returns the object URL.
func (p *PendingUpload) Send(blob io.ReadSeeker) (string, error) {
	url, err := p.service.uploader.Upload(p.ctx, p.account, p.upload.Name, blob)
	if err != nil {
		var uerr *upload.Error
		switch {
		case errors.As(err, &uerr) && uerr.Kind == upload.KindHTTP:
			p.log.Warn("Upload rejected", "status", uerr.StatusCode, "response", string(uerr.Body))
		case errors.Is(err, context.Canceled):
			p.log.Info("Upload cancelled")
		default:
			p.log.Error("Upload failed", "error", err)
		}
		return "", err
	}

	p.log.Info("Upload complete", "url", url)
	return url, nil
}

// Close cancels the upload if it is still running and removes it from the
// registry.
func (p *PendingUpload) Close() {
	p.upload.Cancel()
	p.service.registry.Remove(p.upload)
}

// NewUpload uploads blob for the given account under the caller-chosen id
// and returns the object URL. The upload can be aborted with CancelUpload
// until it settles; its registry entry is removed either way.
func (s *Service) NewUpload(ctx context.Context, accountID string, id string, name string, blob io.ReadSeeker) (string, error) {
	pending, err := s.BeginUpload(ctx, accountID, id, name)
	if err != nil {
		return "", err
	}
	defer pending.Close()

	return pending.Send(blob)
}

// CancelUpload aborts the in-flight upload with the given id, if any.
func (s *Service) CancelUpload(id string) {
	if s.registry.Cancel(id) {
		slog.Info("Upload cancellation requested", "upload_id", id)
	}
}

// InFlight returns the number of uploads that have not settled yet.
func (s *Service) InFlight() int {
	return s.registry.Len()
}

func (s *Service) SaveAccount(ctx context.Context, account accounts.Account) error {
	if err := s.accounts.Put(ctx, account); err != nil {
		return err
	}
	slog.Info("Account saved", "account", account.ID)
	return nil
}

// DeleteAccount forgets the stored credentials for id.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	slog.Info("Account deleted", "account", id)
	return nil
}

// Account returns the stored account with its secret removed.
func (s *Service) Account(ctx context.Context, id string) (accounts.Account, error) {
	a, err := s.accounts.Get(ctx, id)
	if err != nil {
		return accounts.Account{}, err
	}
	return a.Redacted(), nil
}

// Configured reports whether credentials are stored for id.
func (s *Service) Configured(ctx context.Context, id string) (bool, error) {
	_, err := s.accounts.Get(ctx, id)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// Accounts lists every stored account with secrets removed.
func (s *Service) Accounts(ctx context.Context) ([]accounts.Account, error) {
	list, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = list[i].Redacted()
	}
	return list, nil
}
