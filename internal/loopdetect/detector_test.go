package loopdetect_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-gw/sentinel/internal/loopdetect"
	"github.com/sentinel-gw/sentinel/internal/session"
)

func sessionWith(texts ...string) *session.Session {
	s := &session.Session{Key: "test"}
	for i, text := range texts {
		s.AppendTurn(session.Turn{
			ID:          text,
			Text:        text,
			Fingerprint: loopdetect.Fingerprint(text),
			At:          time.Now().Add(time.Duration(i) * time.Second),
		}, 10)
	}
	return s
}

func TestFingerprint_NormalizesCaseAndWhitespace(t *testing.T) {
	a := loopdetect.Fingerprint("Check   the\tLOGS")
	b := loopdetect.Fingerprint("check the logs")
	c := loopdetect.Fingerprint("check the files")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEvaluate_ExactLoop(t *testing.T) {
	d := loopdetect.New(3, 0.90, nil)
	s := sessionWith("list the files", "run the tests")

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "RUN  THE  TESTS")
	s.Unlock()

	assert.Equal(t, loopdetect.LoopExact, eval.Verdict.Kind)
	assert.Equal(t, "run the tests", eval.Verdict.MatchedTurnID)
	assert.Equal(t, 1.0, eval.Verdict.Score)
}

func TestEvaluate_ExactOnlyChecksWindow(t *testing.T) {
	d := loopdetect.New(2, 0.90, nil)
	s := sessionWith("oldest", "middle", "newest")

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "oldest")
	s.Unlock()

	assert.Equal(t, loopdetect.Pass, eval.Verdict.Kind, "turn outside the window must not match")
}

func TestEvaluate_SemanticLoop(t *testing.T) {
	emb := &loopdetect.StaticEmbedder{Vectors: map[string][]float32{
		"what's in the log file": {1, 0.1, 0},
		"show me the log file":   {1, 0.12, 0},
	}}
	d := loopdetect.New(3, 0.90, emb)
	s := sessionWith("what's in the log file")

	// Backfill needs prior turn embeddings computed lazily.
	s.Lock()
	eval := d.Evaluate(context.Background(), s, "show me the log file")
	s.Unlock()

	require.Equal(t, loopdetect.LoopSemantic, eval.Verdict.Kind)
	assert.Equal(t, "what's in the log file", eval.Verdict.MatchedTurnID)
	assert.GreaterOrEqual(t, eval.Verdict.Score, 0.90)
	assert.NotNil(t, eval.Embedding, "the new turn's embedding is returned for caching")
}

func TestEvaluate_SemanticBelowThresholdPasses(t *testing.T) {
	emb := &loopdetect.StaticEmbedder{Vectors: map[string][]float32{
		"deploy to staging": {1, 0, 0},
		"what time is it":   {0, 1, 0},
	}}
	d := loopdetect.New(3, 0.90, emb)
	s := sessionWith("deploy to staging")

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "what time is it")
	s.Unlock()

	assert.Equal(t, loopdetect.Pass, eval.Verdict.Kind)
	assert.False(t, eval.Verdict.Degraded)
}

func TestEvaluate_DegradesWhenEmbedderFails(t *testing.T) {
	// StaticEmbedder errors on unknown text, standing in for a dead
	// embedding endpoint.
	emb := &loopdetect.StaticEmbedder{Vectors: map[string][]float32{}}
	d := loopdetect.New(3, 0.90, emb)
	s := sessionWith("first question")

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "second question")
	s.Unlock()

	assert.Equal(t, loopdetect.Pass, eval.Verdict.Kind, "embedder failure must not block the request")
	assert.True(t, eval.Verdict.Degraded)
	assert.Nil(t, eval.Embedding)
}

func TestEvaluate_ExactBeatsSemantic(t *testing.T) {
	// An exact match never touches the embedder at all.
	emb := &loopdetect.StaticEmbedder{Vectors: map[string][]float32{}}
	d := loopdetect.New(3, 0.90, emb)
	s := sessionWith("same thing")

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "same thing")
	s.Unlock()

	assert.Equal(t, loopdetect.LoopExact, eval.Verdict.Kind)
	assert.False(t, eval.Verdict.Degraded)
}

func TestEvaluate_EmptyHistoryPasses(t *testing.T) {
	d := loopdetect.New(3, 0.90, nil)
	s := &session.Session{Key: "fresh"}

	s.Lock()
	eval := d.Evaluate(context.Background(), s, "first ever message")
	s.Unlock()

	assert.Equal(t, loopdetect.Pass, eval.Verdict.Kind)
	assert.NotEmpty(t, eval.Fingerprint)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, loopdetect.CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, loopdetect.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, loopdetect.CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}), "mismatched lengths")
	assert.Equal(t, 0.0, loopdetect.CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
	assert.Equal(t, 0.0, loopdetect.CosineSimilarity(nil, nil))
}
