package catalog

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "one url per line",
			content: "https://a.example/x\nhttp://b.example/y\n",
			want:    []string{"https://a.example/x", "http://b.example/y"},
		},
		{
			name:    "surrounding whitespace and crlf",
			content: "  https://a.example/x  \r\n\thttps://b.example/y\r\n",
			want:    []string{"https://a.example/x", "https://b.example/y"},
		},
		{
			name:    "byte order mark",
			content: "\ufeffhttps://a.example/x\n",
			want:    []string{"https://a.example/x"},
		},
		{
			name:    "non-link lines ignored",
			content: "Course links:\n\n# https://commented.example\nftp://files.example\nwww.example.com\nhttps://a.example/x\n",
			want:    []string{"https://a.example/x"},
		},
		{
			name:    "scheme is case sensitive",
			content: "HTTPS://A.EXAMPLE/\nhttps://a.example/x\n",
			want:    []string{"https://a.example/x"},
		},
		{
			name:    "duplicates collapse to first occurrence",
			content: "https://b.example/y\nhttps://a.example/x\nhttps://b.example/y\n",
			want:    []string{"https://b.example/y", "https://a.example/x"},
		},
		{
			name:    "no trailing newline",
			content: "https://a.example/x",
			want:    []string{"https://a.example/x"},
		},
		{
			name:    "empty",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLinks([]byte(tt.content))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractLinks() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractLinks_LongLine(t *testing.T) {
	long := "https://a.example/" + strings.Repeat("x", 200*1024)
	got := ExtractLinks([]byte("https://first.example/\n" + long + "\n"))
	if len(got) != 2 || got[1] != long {
		t.Errorf("ExtractLinks() returned %d urls, want the long url kept", len(got))
	}
}
