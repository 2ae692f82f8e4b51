package security

import "testing"

// HTMLタグ・危険なマークアップが除去されることを検証
func TestTextSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "牛乳を買う",
			want:  "牛乳を買う",
		},
		{
			name:  "scriptタグを除去",
			input: `<script>alert("xss")</script>重要なタスク`,
			want:  "重要なタスク",
		},
		{
			name:  "imgタグのonerror属性ごと除去",
			input: `<img src=x onerror=alert(1)>レポート作成`,
			want:  "レポート作成",
		},
		{
			name:  "通常のHTMLタグも除去",
			input: "<b>太字</b>と<i>斜体</i>",
			want:  "太字と斜体",
		},
		{
			name:  "前後の空白をトリム",
			input: "  買い物リスト  ",
			want:  "買い物リスト",
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
		{
			name:  "タグのみの入力は空文字列",
			input: "<script></script>",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して出力が安定すること（冪等性）を検証
func TestTextSanitizer_Sanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := `<div>会議メモ <script>evil()</script></div>`
	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)

	if first != second {
		t.Errorf("sanitize is not idempotent: first=%q second=%q", first, second)
	}
}
