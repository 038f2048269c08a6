package vectorstore

import (
	"context"
	"strings"
	"testing"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_archive", true},
		{"Valid with underscore", "my_collection", true},
		{"Valid with numbers", "collection123", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1collection", false},
		{"Invalid special chars", "collection-name", false},
		{"Invalid space", "collection name", false},
		{"Invalid SQL injection", "runs; DROP TABLE research_archive", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTableName(tt.input); got != tt.expected {
				t.Errorf("isValidTableName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewPGVectorStoreRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "1abc", "runs; --", "with space"} {
		if _, err := NewPGVectorStore(nil, name); err == nil {
			t.Errorf("NewPGVectorStore(%q) expected error, got nil", name)
		}
	}

	vs, err := NewPGVectorStore(nil, "research_archive")
	if err != nil {
		t.Fatalf("NewPGVectorStore() unexpected error: %v", err)
	}
	if got := vs.table(); got != `"research_archive"` {
		t.Errorf("table() = %q, want quoted identifier", got)
	}
}

func TestGetContentByMetadataRejectsEmptyFilter(t *testing.T) {
	vs := &PGVectorStore{tableName: "research_archive"}

	_, err := vs.GetContentByMetadata(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for empty filter, got nil")
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("error = %q, want mention of empty filter", err)
	}
}
