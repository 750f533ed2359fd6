package orchestrator

import (
	"net/http"
)

// Formatted is a decision rendered for the wire: an HTTP status plus a
// JSON-marshalable body.
type Formatted struct {
	Status int
	Body   map[string]any
}

// FormatResponse renders a decision into one of the five typed wire
// shapes. A response whose type is not one of the known five gets the
// error shape and status 500; everything else is 200.
func FormatResponse(resp Response) Formatted {
	body := map[string]any{
		"type":       string(resp.Type),
		"intent":     string(resp.Intent),
		"confidence": resp.Confidence,
		"session_id": resp.SessionID,
		"metadata": map[string]any{
			"processing_time_ms": resp.Metadata.ProcessingTime.Milliseconds(),
			"request_id":         resp.Metadata.RequestID,
			"timestamp":          resp.Metadata.Timestamp,
		},
	}
	if len(resp.TargetSections) > 0 {
		body["target_sections"] = resp.TargetSections
	}

	switch resp.Type {
	case TypeClarification:
		body["clarification"] = resp.Data
	case TypeInformation:
		body["answer"] = resp.Data
	case TypeRejection:
		body["rejection"] = resp.Data
	case TypeModification:
		body["analysis"] = resp.Data
	case TypeFallback:
		if fd, ok := resp.Data.(FallbackData); ok {
			body["fallback_reason"] = fd.FallbackReason
		}
	default:
		return Formatted{
			Status: http.StatusInternalServerError,
			Body: map[string]any{
				"type":  "error",
				"error": "unknown response type: " + string(resp.Type),
			},
		}
	}
	return Formatted{Status: http.StatusOK, Body: body}
}
