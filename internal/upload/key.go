package upload

import (
	"strings"
	"time"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/sigv4"
)

// BuildKey returns the object key <prefix>/<YYYYMMDD>-SHA256-<hash>/<name>
// with the file name URI encoded. An empty prefix is omitted entirely.
func BuildKey(account accounts.Account, fileName string, contentHashHex string, now time.Time) string {
	parts := make([]string, 0, 3)
	if prefix := account.NormalizedPrefix(); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		sigv4.DateStamp(now)+"-SHA256-"+contentHashHex,
		sigv4.URIEncode(fileName, true),
	)
	return strings.Join(parts, "/")
}
