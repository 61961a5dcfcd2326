package core

import "github.com/eteran/cloudfile/internal/accounts"

// UploadResult is returned for a successful upload.
type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AccountStatus describes whether credentials are stored for an account.
type AccountStatus struct {
	ID         string            `json:"id"`
	Configured bool              `json:"configured"`
	Account    *accounts.Account `json:"account,omitempty"`
}

// AccountList is the response for GET /accounts.
type AccountList struct {
	Accounts []AccountStatus `json:"accounts"`
}

// ErrorResponse is written for every failed API call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Status is the storage service's HTTP status for rejected uploads.
	Status    int  `json:"status,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

const (
	CodeAccountNotFound = "ERR_ACCOUNT_NOT_FOUND"
	CodeInvalidAccount  = "ERR_INVALID_ACCOUNT"
	CodeBadRequest      = "ERR_BAD_REQUEST"
	CodeInternal        = "ERR_INTERNAL"
	CodeAccessDenied    = "ERR_ACCESS_DENIED"
)
