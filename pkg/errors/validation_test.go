package errors

import (
	"strings"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "requests", false},
		{"valid with dash", "my-package", false},
		{"valid with underscore", "my_package", false},
		{"valid with dot", "my.package", false},
		{"valid scoped npm", "@scope/package", false},
		{"valid maven", "org.apache.commons:commons-lang3", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"path traversal ..", "foo/../bar", true},
		{"smt quote", "foo|bar", true},
		{"backslash", "foo\\bar", true},
		{"variable separator", "impact#a", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRepository(t *testing.T) {
	tests := []struct {
		owner, name string
		wantErr     bool
	}{
		{"securechaindev", "depex", false},
		{"a", "b.c", false},
		{"", "repo", true},
		{"owner", "", true},
		{"own/er", "repo", true},
		{"owner", "..", true},
		{"owner", "re po", true},
	}

	for _, tt := range tests {
		t.Run(tt.owner+"/"+tt.name, func(t *testing.T) {
			err := ValidateRepository(tt.owner, tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepository(%q, %q) error = %v, wantErr %v", tt.owner, tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDepthAndLimit(t *testing.T) {
	if err := ValidateDepth(0); err != nil {
		t.Errorf("ValidateDepth(0) = %v, want nil", err)
	}
	if err := ValidateDepth(-1); !Is(err, ErrCodeInvalidInput) {
		t.Errorf("ValidateDepth(-1) = %v, want INVALID_INPUT", err)
	}
	if err := ValidateLimit(1); err != nil {
		t.Errorf("ValidateLimit(1) = %v, want nil", err)
	}
	if err := ValidateLimit(0); !Is(err, ErrCodeInvalidInput) {
		t.Errorf("ValidateLimit(0) = %v, want INVALID_INPUT", err)
	}
}
