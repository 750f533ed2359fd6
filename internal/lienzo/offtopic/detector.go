// Package offtopic classifies incoming messages as on-topic (about the QA
// canvas under discussion) or off-topic, and composes polite redirections
// for the latter.
//
// The primary classifier is deterministic keyword-density scoring over the
// bilingual category lexicons; an optional AI pass can refine weak
// verdicts. The keyword verdict is always the fallback when the AI call
// fails.
package offtopic

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pcastillo/lienzo/internal/lienzo/completion"
	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
)

// Method identifies which path produced a verdict.
type Method string

const (
	MethodKeyword Method = "keyword"
	MethodAI      Method = "ai"
	MethodHybrid  Method = "hybrid"
)

// Result is the off-topic verdict for one message.
type Result struct {
	OffTopic   bool
	Category   lexicon.Category // set only when OffTopic
	Confidence float64
	Method     Method
}

// Config controls the detector.
type Config struct {
	// EnableHybridDetection turns on the AI refinement pass for weak
	// keyword verdicts. Requires a non-nil Port.
	EnableHybridDetection bool

	// WeakThreshold is the keyword-confidence level below which the AI
	// pass is consulted. Defaults to 0.6.
	WeakThreshold float64
}

// Detector scores messages against the category lexicons.
type Detector struct {
	lex  *lexicon.Lexicon
	port completion.Port
	cfg  Config
}

// New returns a Detector. port may be nil, which disables the hybrid pass
// regardless of configuration.
func New(lex *lexicon.Lexicon, port completion.Port, cfg Config) *Detector {
	if cfg.WeakThreshold <= 0 {
		cfg.WeakThreshold = 0.6
	}
	return &Detector{lex: lex, port: port, cfg: cfg}
}

// Detect classifies message. A message is on-topic whenever the QA-domain
// keyword density meets or exceeds the best off-topic category density, so
// mixed-content messages ("fix the test cases, and by the way who won the
// game") favor on-topic.
func (d *Detector) Detect(ctx context.Context, message string) Result {
	result, matched := d.detectKeyword(message)

	if d.cfg.EnableHybridDetection && d.port != nil && result.Confidence < d.cfg.WeakThreshold {
		if refined, ok := d.detectAI(ctx, message); ok {
			// With no keyword evidence at all the verdict is the model's
			// alone; otherwise the two passes combined.
			if matched {
				refined.Method = MethodHybrid
			} else {
				refined.Method = MethodAI
			}
			return refined
		}
		// AI failure: the keyword verdict stands.
	}
	return result
}

// detectKeyword is the deterministic scoring path. The bool result reports
// whether any lexicon term matched at all.
func (d *Detector) detectKeyword(message string) (Result, bool) {
	lower := strings.ToLower(message)

	domainScore := countMatches(lower, d.lex.DomainTerms)

	var bestCategory lexicon.Category
	bestScore := 0
	for category, terms := range d.lex.OffTopic {
		score := countMatches(lower, terms)
		if score > bestScore {
			bestScore = score
			bestCategory = category
		}
	}

	matched := domainScore > 0 || bestScore > 0

	if bestScore == 0 || domainScore >= bestScore {
		// On-topic. Confidence grows with domain evidence; a message with
		// no matches at all is a weak on-topic default.
		return Result{
			OffTopic:   false,
			Confidence: clamp(0.4 + 0.15*float64(domainScore)),
			Method:     MethodKeyword,
		}, matched
	}

	return Result{
		OffTopic:   true,
		Category:   bestCategory,
		Confidence: clamp(0.3 + 0.2*float64(bestScore-domainScore)),
		Method:     MethodKeyword,
	}, matched
}

// offtopicSchema validates the AI refinement output.
var offtopicSchema = completion.MustSchema("offtopic.json", `{
	"type": "object",
	"required": ["off_topic", "confidence"],
	"properties": {
		"off_topic":  {"type": "boolean"},
		"category":   {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

const offtopicSystemPrompt = `You decide whether a chat message is about a QA ticket document (ticket summary, acceptance criteria, test cases) or about something else.

Respond ONLY with JSON:
{"off_topic": true|false, "category": "entertainment"|"personal"|"small_talk"|"unrelated_work"|"general_tech", "confidence": 0.0-1.0}

Messages may be in Spanish or English. A message that mentions the ticket or its sections at all is on-topic, even when mixed with chit-chat.`

type offtopicAIResult struct {
	OffTopic   bool    `json:"off_topic"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// detectAI runs the refinement pass. The bool result reports whether the
// AI verdict is usable.
func (d *Detector) detectAI(ctx context.Context, message string) (Result, bool) {
	raw, err := d.port.Classify(ctx, completion.ClassifyRequest{
		System: offtopicSystemPrompt,
		User:   message,
		Schema: offtopicSchema,
	})
	if err != nil {
		slog.Debug("offtopic: AI refinement failed, keeping keyword verdict", "err", err)
		return Result{}, false
	}
	var parsed offtopicAIResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Debug("offtopic: decode AI verdict", "err", err)
		return Result{}, false
	}
	return Result{
		OffTopic:   parsed.OffTopic,
		Category:   lexicon.Category(parsed.Category),
		Confidence: clamp(parsed.Confidence),
	}, true
}

// countMatches counts how many lexicon terms occur in the lowercased text.
func countMatches(lower string, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			count++
		}
	}
	return count
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
