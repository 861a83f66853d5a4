// Package intent scores buying intent from chat messages. The analyzer
// is a pure keyword-weight scorer: deterministic, stateless, no network
// calls. The session folds per-message scores into a running maximum.
package intent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/boutikcards/chat-commerce-go/internal/config"
	"github.com/boutikcards/chat-commerce-go/internal/domain"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Analyzer scores one message at a time against the configured keyword
// taxonomy.
type Analyzer struct {
	cfg config.IntentConfig

	// Keyword lists pre-normalized (lowercase, accents stripped) so a
	// buyer typing "j'achete" still matches "j'achète".
	high     []string
	medium   []string
	low      []string
	direct   []string
	concerns map[string][]string
}

// NewAnalyzer builds an Analyzer from the taxonomy.
func NewAnalyzer(taxonomy *config.Taxonomy) *Analyzer {
	a := &Analyzer{
		cfg:      taxonomy.Intent,
		high:     normalizeAll(taxonomy.Intent.High),
		medium:   normalizeAll(taxonomy.Intent.Medium),
		low:      normalizeAll(taxonomy.Intent.Low),
		direct:   normalizeAll(taxonomy.Intent.Direct),
		concerns: make(map[string][]string, len(taxonomy.Concerns)),
	}
	for category, words := range taxonomy.Concerns {
		a.concerns[category] = normalizeAll(words)
	}
	return a
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the text and strips combining accents, the
// canonical form for keyword matching.
func Normalize(s string) string {
	out, _, err := transform.String(accentStripper, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, Normalize(w))
	}
	return out
}

func countMatches(msg string, keywords []string) int {
	return len(matchKeywords(msg, keywords))
}

func matchKeywords(msg string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// Analyze scores one message. accumulated is the session's running
// intent before this message; ReadyToBuy reflects the max of both
// against the configured threshold.
func (a *Analyzer) Analyze(message string, accumulated float64) *domain.Analysis {
	msg := Normalize(message)

	highHits := matchKeywords(msg, a.high)
	mediumHits := matchKeywords(msg, a.medium)
	lowHits := matchKeywords(msg, a.low)

	score := float64(len(highHits))*a.cfg.HighWeight +
		float64(len(mediumHits))*a.cfg.MediumWeight +
		float64(len(lowHits))*a.cfg.LowWeight
	if score > 1 {
		score = 1
	}

	direct := countMatches(msg, a.direct) > 0

	// Topics are the matched intent phrases in normalized form; the
	// session merges them across messages.
	topics := uniqueSorted(append(append(highHits, mediumHits...), lowHits...))

	var concerns []string
	for category, words := range a.concerns {
		if countMatches(msg, words) > 0 {
			concerns = append(concerns, category)
		}
	}
	sort.Strings(concerns)

	effective := accumulated
	if score > effective {
		effective = score
	}

	ready := direct || effective >= a.cfg.ReadyThreshold

	// Advisory only. The step machine owns the actual transition.
	var next domain.Step
	switch {
	case direct:
		next = domain.StepCollectName
	case ready:
		next = domain.StepCollectQuantity
	default:
		next = domain.StepProductEngagement
	}

	return &domain.Analysis{
		BuyingIntent:      score,
		Concerns:          concerns,
		Topics:            topics,
		ReadyToBuy:        ready,
		DirectPurchase:    direct,
		NeedsMoreInfo:     !direct && score < a.cfg.ReadyThreshold && len(concerns) > 0,
		SuggestedNextStep: next,
	}
}

func uniqueSorted(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	sort.Strings(words)
	out := words[:1]
	for _, w := range words[1:] {
		if w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return out
}

// Threshold exposes the configured readiness threshold.
func (a *Analyzer) Threshold() float64 {
	return a.cfg.ReadyThreshold
}
