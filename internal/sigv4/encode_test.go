package sigv4_test

import (
	"testing"

	"github.com/eteran/cloudfile/internal/sigv4"

	"github.com/stretchr/testify/require"
)

func TestURIEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		encodeSlash bool
		want        string
	}{
		{"unreserved", "AZaz09-_.~", true, "AZaz09-_.~"},
		{"space", "a b", true, "a%20b"},
		{"fixup characters", "!'()*", true, "%21%27%28%29%2A"},
		{"reserved", "a+b=c&d?e#f", true, "a%2Bb%3Dc%26d%3Fe%23f"},
		{"percent", "100%", true, "100%25"},
		{"slash encoded", "a/b", true, "a%2Fb"},
		{"slash kept", "/a/b c", false, "/a/b%20c"},
		{"utf8", "résumé", true, "r%C3%A9sum%C3%A9"},
		{"file name", "report (final)*.pdf", true, "report%20%28final%29%2A.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, sigv4.URIEncode(tt.input, tt.encodeSlash))
		})
	}
}
