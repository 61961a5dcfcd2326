package sigv4

import (
	"strings"
)

const upperHex = "0123456789ABCDEF"

// URIEncode percent-encodes s per RFC 3986 the way S3 expects it: only the
// unreserved characters A-Z, a-z, 0-9, '-', '_', '.' and '~' pass through and
// every other byte becomes %XX with upper-case hex. This matches a baseline
// URI component encoder followed by escaping !'()*. When encodeSlash is false
// '/' is left intact so whole object paths can be encoded.
func URIEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (c == '/' && !encodeSlash) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
