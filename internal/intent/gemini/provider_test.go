package gemini

import (
	"context"
	"testing"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p, err := New(context.Background(), "test-key", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != "gemini:"+DefaultModel {
		t.Errorf("Name = %q", p.Name())
	}
}
