// Package completion abstracts the single external capability this
// subsystem consumes: an AI completion service with two call shapes,
// structured classification and free-form generation.
//
// Every AI-backed analyzer depends on the Port interface, never on a
// concrete provider, so tests substitute deterministic stubs. Retry and
// provider-failover semantics beyond a thin transient-error retry belong
// to the operator of the upstream service, not to this package.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429) or when a local limiter denies the call. Callers
// surface a degraded response instead of retrying.
var ErrRateLimit = errors.New("completion: rate limit exceeded")

// ErrMalformedOutput is returned when the model produces output that cannot
// be parsed as JSON or that fails validation against the requested schema.
// Callers fall back to their deterministic path.
var ErrMalformedOutput = errors.New("completion: malformed model output")

// Message is a single role-tagged turn injected into the model context.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string
	// Content is the message text.
	Content string
}

// ClassifyRequest asks the model for a structured result.
type ClassifyRequest struct {
	// System is the instruction prompt.
	System string
	// History contains prior conversation turns, oldest first. May be nil.
	History []Message
	// User is the current message being classified.
	User string
	// Schema, when non-nil, is enforced on the model output before it is
	// returned; violations surface as ErrMalformedOutput.
	Schema *jsonschema.Schema
}

// GenerateRequest asks the model for free-form text.
type GenerateRequest struct {
	System  string
	History []Message
	User    string
}

// Port is the AI completion capability. Both methods are single fallible
// operations: success, error, or context timeout. Implementations must be
// safe for concurrent use.
type Port interface {
	// Classify returns the model's structured output as raw JSON, already
	// validated against req.Schema when one was supplied. Callers unmarshal
	// the result into their own type.
	Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error)

	// Generate returns the model's free-form text response.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// MustSchema compiles a JSON schema document, panicking on error. Intended
// for package-level schema constants, which are exercised by tests.
func MustSchema(name, doc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(doc)); err != nil {
		panic(err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return schema
}

// ValidateJSON checks raw against schema, mapping any parse or validation
// failure to ErrMalformedOutput.
func ValidateJSON(schema *jsonschema.Schema, raw []byte) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.Join(ErrMalformedOutput, err)
	}
	if err := schema.Validate(v); err != nil {
		return errors.Join(ErrMalformedOutput, err)
	}
	return nil
}
