package cmd

import "testing"

func TestExtractSchema(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		expected string
	}{
		{"standard", "user:pass@tcp(localhost:3306)/mydb", "mydb"},
		{"with_params", "user:pass@tcp(localhost:3306)/mydb?charset=utf8", "mydb"},
		{"no_slash", "user:pass@tcp(localhost:3306)", ""},
		{"trailing_slash", "user:pass@tcp(localhost:3306)/", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSchema(tt.dsn)
			if got != tt.expected {
				t.Errorf("extractSchema(%q) = %q, want %q", tt.dsn, got, tt.expected)
			}
		})
	}
}
