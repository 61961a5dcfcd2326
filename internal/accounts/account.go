// Package accounts holds the S3 account configuration used for uploads and
// the stores that persist it.
package accounts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAccount  = errors.New("invalid account")
)

// Account is the credential and location bundle for one storage target.
type Account struct {
	ID        string `json:"id" yaml:"id"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Region    string `json:"region" yaml:"region"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// NormalizedPrefix returns the prefix without leading or trailing slashes.
func (a Account) NormalizedPrefix() string {
	return strings.Trim(a.Prefix, "/")
}

// Host returns the virtual-hosted-style host name <bucket>.<endpoint>.
func (a Account) Host() string {
	return a.Bucket + "." + a.Endpoint
}

// Validate reports the first required field that is missing.
func (a Account) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"id", a.ID},
		{"endpoint", a.Endpoint},
		{"region", a.Region},
		{"bucket", a.Bucket},
		{"access_key", a.AccessKey},
		{"secret_key", a.SecretKey},
	}

	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidAccount, field.name)
		}
	}

	if strings.Contains(a.Endpoint, "://") || strings.Contains(a.Endpoint, "/") {
		return fmt.Errorf("%w: endpoint must be a host name, got %q", ErrInvalidAccount, a.Endpoint)
	}

	return nil
}

// Redacted returns a copy of the account with the secret key blanked.
func (a Account) Redacted() Account {
	a.SecretKey = ""
	return a
}
