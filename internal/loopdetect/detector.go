// Package loopdetect finds repetitive "stuck loop" patterns in a session's
// recent turns, by exact fingerprint match and by embedding similarity.
//
// DESIGN: Exact detection is a normalized hash compare and always runs.
// Semantic detection needs an embedding provider; when that provider is
// down the detector degrades to exact-only rather than failing the request.
// Comparison walks most-recent-first and short-circuits at the first turn
// crossing the threshold, keeping detection latency bounded.
package loopdetect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-gw/sentinel/internal/session"
)

// Kind classifies the detector's verdict.
type Kind string

const (
	// Pass means no repetition was found.
	Pass Kind = "pass"
	// LoopExact means the message's normalized fingerprint matched a
	// recent turn.
	LoopExact Kind = "loop-exact"
	// LoopSemantic means embedding similarity to a recent turn crossed
	// the threshold.
	LoopSemantic Kind = "loop-semantic"
)

// Verdict is the outcome of evaluating one message against session history.
type Verdict struct {
	Kind          Kind
	MatchedTurnID string  // the first prior turn crossing the threshold
	Score         float64 // 1.0 for exact matches, cosine similarity otherwise
	Degraded      bool    // semantic detection was unavailable
}

// Evaluation carries the verdict plus the derived turn attributes so the
// caller can record them without recomputing.
type Evaluation struct {
	Verdict     Verdict
	Fingerprint string
	Embedding   []float32 // nil when the embedder was unavailable
}

// Detector evaluates new messages against session history.
type Detector struct {
	window    int
	threshold float64
	embedder  Embedder
}

// New creates a detector. A nil embedder disables semantic detection
// entirely (exact-only mode).
func New(window int, threshold float64, embedder Embedder) *Detector {
	return &Detector{window: window, threshold: threshold, embedder: embedder}
}

// Evaluate checks text against the session's last K turns. Caller must hold
// the session lock so the history view is consistent.
func (d *Detector) Evaluate(ctx context.Context, s *session.Session, text string) Evaluation {
	eval := Evaluation{
		Verdict:     Verdict{Kind: Pass},
		Fingerprint: Fingerprint(text),
	}

	recent := s.Recent(d.window)

	// Exact pass: hash compare, most-recent-first.
	for _, turn := range recent {
		if turn.Fingerprint == eval.Fingerprint {
			eval.Verdict = Verdict{Kind: LoopExact, MatchedTurnID: turn.ID, Score: 1.0}
			return eval
		}
	}

	if d.embedder == nil || len(recent) == 0 {
		eval.Verdict.Degraded = d.embedder == nil
		return eval
	}

	// Semantic pass: embed once, compare against cached turn embeddings.
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("embedding provider unavailable, exact-only detection")
		eval.Verdict.Degraded = true
		return eval
	}
	eval.Embedding = vec

	for _, turn := range recent {
		if turn.Embedding == nil {
			// Prior turn predates the embedder coming up; backfill and
			// cache so the next evaluation skips this call.
			prior, err := d.embedder.Embed(ctx, turn.Text)
			if err != nil {
				log.Debug().Err(err).Str("turn", turn.ID).Msg("could not backfill turn embedding")
				continue
			}
			turn.Embedding = prior
		}
		score := CosineSimilarity(vec, turn.Embedding)
		if score >= d.threshold {
			eval.Verdict = Verdict{Kind: LoopSemantic, MatchedTurnID: turn.ID, Score: score}
			return eval
		}
	}

	return eval
}

// Fingerprint computes a case- and whitespace-insensitive hash of text.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity computes cos(a, b) without assuming either vector is
// normalized. Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
