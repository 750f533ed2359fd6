package completion_test

import (
	"errors"
	"testing"

	"github.com/pcastillo/lienzo/internal/lienzo/completion"
)

var testSchema = completion.MustSchema("test.json", `{
	"type": "object",
	"required": ["intent", "confidence"],
	"properties": {
		"intent":     {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

func TestValidateJSON_AcceptsConformingOutput(t *testing.T) {
	raw := []byte(`{"intent": "modify_canvas", "confidence": 0.9}`)
	if err := completion.ValidateJSON(testSchema, raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateJSON_RejectsMissingRequiredField(t *testing.T) {
	raw := []byte(`{"intent": "modify_canvas"}`)
	err := completion.ValidateJSON(testSchema, raw)
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("got %v, want ErrMalformedOutput", err)
	}
}

func TestValidateJSON_RejectsOutOfRangeValue(t *testing.T) {
	raw := []byte(`{"intent": "modify_canvas", "confidence": 1.5}`)
	err := completion.ValidateJSON(testSchema, raw)
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("got %v, want ErrMalformedOutput", err)
	}
}

func TestValidateJSON_RejectsNonJSON(t *testing.T) {
	err := completion.ValidateJSON(testSchema, []byte("I think the intent is modify_canvas"))
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("got %v, want ErrMalformedOutput", err)
	}
}

func TestValidateJSON_NilSchemaAcceptsAnything(t *testing.T) {
	if err := completion.ValidateJSON(nil, []byte("not even json")); err != nil {
		t.Fatalf("nil schema rejected input: %v", err)
	}
}
