// Package intent classifies the primary intent of a user message: change
// the canvas, ask for clarification, request information or an
// explanation, or wander off-topic.
//
// Classification is AI-first with a deterministic bilingual keyword
// fallback; the analyzer always returns a usable Result, never an error.
package intent

import (
	"github.com/pcastillo/lienzo/internal/lienzo/canvas"
)

// Type is the classified purpose of a user message.
type Type string

const (
	TypeModifyCanvas       Type = "modify_canvas"
	TypeAskClarification   Type = "ask_clarification"
	TypeProvideInformation Type = "provide_information"
	TypeRequestExplanation Type = "request_explanation"
	TypeOffTopic           Type = "off_topic"
)

// Known reports whether t is one of the defined intent types.
func (t Type) Known() bool {
	switch t {
	case TypeModifyCanvas, TypeAskClarification, TypeProvideInformation,
		TypeRequestExplanation, TypeOffTopic:
		return true
	}
	return false
}

// Context captures the conversational surroundings the classification was
// made in. It rides along in the Result for observability and prompts.
type Context struct {
	HasCanvas          bool              `json:"has_canvas"`
	CanvasComplexity   canvas.Complexity `json:"canvas_complexity"`
	ConversationLength int               `json:"conversation_length"`
	AvailableSections  []canvas.Section  `json:"available_sections"`
}

// Result is a single intent classification. Confidence is always within
// [0,1] and Reasoning is always non-empty, on both the AI and fallback
// paths.
type Result struct {
	Intent                Type             `json:"intent"`
	Confidence            float64          `json:"confidence"`
	TargetSections        []canvas.Section `json:"target_sections"`
	Context               Context          `json:"context"`
	Reasoning             string           `json:"reasoning"`
	Keywords              []string         `json:"keywords"`
	ShouldModifyCanvas    bool             `json:"should_modify_canvas"`
	RequiresClarification bool             `json:"requires_clarification"`
}
