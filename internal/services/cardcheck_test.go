package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testCardSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "skills"],
	"properties": {
		"schema_version": {"type": "string"},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"skills": {"type": "array", "items": {"type": "string"}, "minItems": 1}
	}
}`

func newTestChecker(t *testing.T) *CardChecker {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent-card.v1.json"), []byte(testCardSchema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	checker, err := NewCardChecker(context.Background(), dir)
	if err != nil {
		t.Fatalf("NewCardChecker: %v", err)
	}
	return checker
}

func TestCardCheckerAcceptsValidCard(t *testing.T) {
	checker := newTestChecker(t)
	card := []byte(`{"name":"translator-bot","skills":["translation"],"description":"fr/en"}`)
	if err := checker.Validate(context.Background(), card); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCardCheckerRejections(t *testing.T) {
	checker := newTestChecker(t)

	cases := []struct {
		name string
		card string
	}{
		{"missing name", `{"skills":["translation"]}`},
		{"empty skills", `{"name":"bot","skills":[]}`},
		{"wrong type", `{"name":"bot","skills":"translation"}`},
		{"unknown version", `{"schema_version":"agent-card.v9","name":"bot","skills":["x"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checker.Validate(context.Background(), []byte(tc.card))
			if !errors.Is(err, ErrCardInvalid) {
				t.Fatalf("err = %v, want ErrCardInvalid", err)
			}
		})
	}
}

func TestCardCheckerMalformedJSON(t *testing.T) {
	checker := newTestChecker(t)
	if err := checker.Validate(context.Background(), []byte(`{"name":`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestNewCardCheckerEmptyDir(t *testing.T) {
	if _, err := NewCardChecker(context.Background(), t.TempDir()); err == nil {
		t.Fatal("empty schema dir accepted")
	}
}
