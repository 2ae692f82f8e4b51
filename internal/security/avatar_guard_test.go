package security

import (
	"strings"
	"testing"
)

// 危険なスキーム・ホストを持つURLが拒否されることを検証
func TestAvatarGuard_ValidateURL_Rejected(t *testing.T) {
	guard := NewAvatarGuard()

	tests := []struct {
		name    string
		url     string
		errPart string
	}{
		{
			name:    "空URL",
			url:     "",
			errPart: "empty URL",
		},
		{
			name:    "javascriptスキーム",
			url:     "javascript:alert(1)",
			errPart: "disallowed scheme",
		},
		{
			name:    "dataスキーム",
			url:     "data:image/png;base64,AAAA",
			errPart: "disallowed scheme",
		},
		{
			name:    "fileスキーム",
			url:     "file:///etc/passwd",
			errPart: "disallowed scheme",
		},
		{
			name:    "ホストなし",
			url:     "https:///avatar.png",
			errPart: "empty host",
		},
		{
			name:    "ループバックIP",
			url:     "http://127.0.0.1/avatar.png",
			errPart: "blocked IP",
		},
		{
			name:    "プライベートIP 10.x",
			url:     "http://10.0.0.5/avatar.png",
			errPart: "blocked IP",
		},
		{
			name:    "プライベートIP 192.168.x",
			url:     "http://192.168.1.1/avatar.png",
			errPart: "blocked IP",
		},
		{
			name:    "クラウドメタデータIP",
			url:     "http://169.254.169.254/latest/meta-data/",
			errPart: "blocked IP",
		},
		{
			name:    "IPv6ループバック",
			url:     "http://[::1]/avatar.png",
			errPart: "blocked IP",
		},
		{
			name:    "localhostホスト名",
			url:     "http://localhost/avatar.png",
			errPart: "blocked host",
		},
		{
			name:    "localhostは大文字でも拒否",
			url:     "http://LOCALHOST/avatar.png",
			errPart: "blocked host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if err == nil {
				t.Fatalf("ValidateURL(%q) = nil, want error", tt.url)
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.errPart)
			}
		})
	}
}

// 安全な公開URLが受理されることを検証
func TestAvatarGuard_ValidateURL_Accepted(t *testing.T) {
	guard := NewAvatarGuard()

	urls := []string{
		"https://example.com/avatar.png",
		"http://example.com/avatar.png",
		"https://cdn.example.com/images/user-1.jpg?size=128",
		"https://93.184.216.34/avatar.png",
	}

	for _, u := range urls {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}
