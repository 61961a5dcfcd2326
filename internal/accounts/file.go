package accounts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the layout of an accounts seed file:
//
//	accounts:
//	  - id: personal
//	    endpoint: s3.example.com
//	    bucket: files
//	    region: us-east-1
//	    prefix: mail/
//	    access_key: AKIA...
//	    secret_key: ...
type File struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadFile reads and validates the accounts listed in a YAML seed file.
func LoadFile(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	for _, a := range f.Accounts {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("account %q: %w", a.ID, err)
		}
	}

	return f.Accounts, nil
}
