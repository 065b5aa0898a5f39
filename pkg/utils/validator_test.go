package utils

import "testing"

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input string
		empty bool
	}{
		{"zero value", "", true},
		{"spaces only", "   ", true},
		{"mixed whitespace", " \t\r\n ", true},
		{"transcript", "hello there", false},
		{"padded transcript", "  hi  ", false},
		{"punctuation only", "...", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmpty(tt.input); got != tt.empty {
				t.Errorf("IsEmpty(%q) = %t, want %t", tt.input, got, tt.empty)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "notes.txt", "notes.txt"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"spaces and symbols", "my report (final).pdf", "my_report__final_.pdf"},
		{"unicode", "résumé.txt", "r_sum_.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := SanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  bool
	}{
		{"txt ok", "a.txt", 10, false},
		{"pdf ok", "a.PDF", 10, false},
		{"exe rejected", "a.exe", 10, true},
		{"no name", "", 10, true},
		{"too large", "a.txt", MaxUploadBytes + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.filename, tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%t, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateEndpointPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/orders/{order_id}", false},
		{"/ping", false},
		{"", true},
		{"orders", true},
		{"/bad path", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateEndpointPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%t, got %v", tt.wantErr, err)
			}
		})
	}
}
