// Chat-completions interception and forwarding.
//
// DESIGN: The session lock is held for the whole inspection phase (leak,
// loop, throttle, turn append) so two concurrent requests on one session
// never evaluate against a stale history view. The lock is released before
// the upstream round trip; only the post-response outcome update retakes it.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sentinel-gw/sentinel/internal/config"
	"github.com/sentinel-gw/sentinel/internal/costcontrol"
	"github.com/sentinel-gw/sentinel/internal/loopdetect"
	"github.com/sentinel-gw/sentinel/internal/monitoring"
	"github.com/sentinel-gw/sentinel/internal/providers"
	"github.com/sentinel-gw/sentinel/internal/session"
)

// parsedRequest is what the inspection phase needs from the request body.
type parsedRequest struct {
	model      string
	lastUser   string // content of the most recent user message
	promptText string // all message contents joined, for cost estimation
}

func parseChatRequest(body []byte) (parsedRequest, error) {
	if !gjson.ValidBytes(body) {
		return parsedRequest{}, fmt.Errorf("request body is not valid JSON")
	}
	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		return parsedRequest{}, fmt.Errorf("missing model")
	}
	messages := gjson.GetBytes(body, "messages").Array()
	if len(messages) == 0 {
		return parsedRequest{}, fmt.Errorf("missing messages")
	}

	var prompt strings.Builder
	lastUser := ""
	for _, m := range messages {
		content := m.Get("content").String()
		prompt.WriteString(content)
		prompt.WriteByte('\n')
		if m.Get("role").String() == "user" {
			lastUser = content
		}
	}
	if lastUser == "" {
		return parsedRequest{}, fmt.Errorf("no user message")
	}
	return parsedRequest{model: model, lastUser: lastUser, promptText: prompt.String()}, nil
}

// === CHAT COMPLETIONS ===

func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		g.metrics.RecordRequest("malformed", false)
		writeError(w, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	req, err := parseChatRequest(body)
	if err != nil {
		g.metrics.RecordRequest("malformed", false)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionKey := r.Header.Get(HeaderSession)
	if sessionKey == "" {
		sessionKey = gjson.GetBytes(body, "user").String()
	}
	if sessionKey == "" {
		// No key at all: this request is its own single-turn session.
		sessionKey = "anon-" + requestID
	}

	logger := log.With().
		Str("request_id", requestID).
		Str("session", sessionKey).
		Str("model", req.model).
		Logger()

	sess, err := g.store.GetOrCreate(r.Context(), sessionKey)
	if err != nil {
		logger.Error().Err(err).Msg("session store unavailable")
		g.metrics.RecordRequest("error", false)
		writeError(w, "session store unavailable", http.StatusInternalServerError)
		return
	}

	sess.Lock()

	if sess.Terminal {
		if g.cfg.Session.TerminalPolicy == config.TerminalReset {
			sess.Reset()
			logger.Info().Msg("terminal session reset")
		} else {
			sess.Unlock()
			logger.Warn().Msg("request on terminal session blocked")
			g.finishBlocked(w, start, requestID, sessionKey, req.model, msgSessionTerminal, nil)
			return
		}
	}

	// Leak check on the inbound prompt. Matches never reach any provider.
	if v := g.scanner.Scan(req.promptText); !v.Clean {
		g.appendTurn(r.Context(), sess, req.lastUser, loopdetect.Evaluation{
			Fingerprint: loopdetect.Fingerprint(req.lastUser),
		}, session.OutcomeBlockedLeak)
		sess.Unlock()
		logger.Warn().Str("pattern", v.Pattern).Msg("inbound leak blocked")
		rec := g.recordIntervention(sessionKey, monitoring.KindLeak, "", 0)
		g.finishBlocked(w, start, requestID, sessionKey, req.model, msgBlockedLeak, &rec)
		return
	}

	// Loop check against recent history.
	eval := g.detector.Evaluate(r.Context(), sess, req.lastUser)
	if eval.Verdict.Degraded {
		g.metrics.RecordDegradedEval()
	}
	if eval.Verdict.Kind != loopdetect.Pass {
		g.appendTurn(r.Context(), sess, req.lastUser, eval, session.OutcomeBlockedLoop)
		sess.Terminal = true
		sess.Unlock()

		kind := monitoring.KindLoopExact
		msg := msgBlockedExact
		if eval.Verdict.Kind == loopdetect.LoopSemantic {
			kind = monitoring.KindLoopSemantic
			msg = msgBlockedLoop
		}
		logger.Warn().
			Str("kind", string(kind)).
			Str("matched_turn", eval.Verdict.MatchedTurnID).
			Float64("score", eval.Verdict.Score).
			Msg("loop blocked")
		rec := g.recordIntervention(sessionKey, kind, eval.Verdict.MatchedTurnID, eval.Verdict.Score)
		g.finishBlocked(w, start, requestID, sessionKey, req.model, msg, &rec)
		return
	}

	// Economic throttle.
	estimated := costcontrol.EstimateRequestCost(req.model, req.promptText)
	if throttle := g.costTracker.CheckThrottle(sessionKey, estimated); throttle.Throttled {
		g.appendTurn(r.Context(), sess, req.lastUser, eval, session.OutcomeBlockedCost)
		if throttle.Reason == costcontrol.ReasonSessionCap {
			sess.Terminal = true
		}
		sess.Unlock()
		logger.Warn().
			Str("reason", string(throttle.Reason)).
			Float64("session_cost", throttle.SessionCost).
			Float64("estimated", estimated).
			Msg("cost throttle blocked")
		rec := g.recordIntervention(sessionKey, monitoring.KindCost, "", 0)
		g.finishBlocked(w, start, requestID, sessionKey, req.model, msgBlockedCost, &rec)
		return
	}

	// Record the turn provisionally as passed, then release the lock for
	// the upstream call.
	g.appendTurn(r.Context(), sess, req.lastUser, eval, session.OutcomePassed)
	sess.Unlock()

	provider, err := g.router.Resolve(req.model, r.Header.Get(HeaderProvider))
	if err != nil {
		g.metrics.RecordRequest("error", false)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	forwardStart := time.Now()
	resp, respBody, err := g.forward(r.Context(), provider, body)
	forwardLatency := time.Since(forwardStart)
	if err != nil {
		logger.Error().Err(err).Str("provider", provider.Name).Msg("upstream call failed")
		g.metrics.RecordRequest("error", false)
		writeError(w, "upstream provider unavailable", http.StatusBadGateway)
		return
	}

	if resp.StatusCode >= 400 {
		// Upstream errors are relayed verbatim so clients see the real
		// provider error, not a gateway rewrite.
		logger.Warn().Int("status", resp.StatusCode).Str("provider", provider.Name).Msg("upstream error relayed")
		g.metrics.RecordRequest("upstream_error", false)
		g.auditRequest(requestID, start, sessionKey, provider.Name, req.model, resp.StatusCode, "upstream_error")
		relayResponse(w, resp, respBody)
		return
	}

	g.costTracker.RecordUsage(sessionKey, req.model,
		int(gjson.GetBytes(respBody, "usage.prompt_tokens").Int()),
		int(gjson.GetBytes(respBody, "usage.completion_tokens").Int()))

	// Leak check on the provider's answer. A match redacts the content in
	// place; the rest of the upstream body (id, usage, model) is relayed
	// untouched so billing data survives.
	content := gjson.GetBytes(respBody, "choices.0.message.content").String()
	if v := g.scanner.Scan(content); !v.Clean {
		logger.Warn().Str("pattern", v.Pattern).Str("provider", provider.Name).Msg("outbound leak redacted")
		redacted, serr := sjson.SetBytes(respBody, "choices.0.message.content", msgBlockedLeak)
		if serr == nil {
			respBody = redacted
		} else {
			respBody = buildChatResponse(req.model, msgBlockedLeak)
		}
		sess.Lock()
		if t := sess.LastTurn(); t != nil {
			t.Outcome = session.OutcomeBlockedLeak
		}
		_ = g.store.Save(r.Context(), sess)
		sess.Unlock()

		rec := g.recordIntervention(sessionKey, monitoring.KindLeak, "", 0)
		g.hub.Publish(rec)
		g.metrics.RecordRequest("blocked", false)
		g.metrics.RecordOverhead(time.Since(start) - forwardLatency)
		g.auditRequest(requestID, start, sessionKey, provider.Name, req.model, http.StatusOK, string(session.OutcomeBlockedLeak))
		writeJSON(w, http.StatusOK, respBody)
		return
	}

	g.metrics.RecordRequest("passed", true)
	g.metrics.RecordOverhead(time.Since(start) - forwardLatency)
	g.auditRequest(requestID, start, sessionKey, provider.Name, req.model, resp.StatusCode, string(session.OutcomePassed))
	logger.Info().
		Str("provider", provider.Name).
		Dur("latency", time.Since(start)).
		Dur("upstream", forwardLatency).
		Msg("request relayed")
	relayResponse(w, resp, respBody)
}

// appendTurn records the evaluated turn under the held session lock and
// persists the session.
func (g *Gateway) appendTurn(ctx context.Context, sess *session.Session, text string, eval loopdetect.Evaluation, outcome session.Outcome) {
	sess.AppendTurn(session.Turn{
		ID:          uuid.New().String(),
		Text:        text,
		Fingerprint: eval.Fingerprint,
		Embedding:   eval.Embedding,
		At:          time.Now(),
		Outcome:     outcome,
	}, g.cfg.Session.HistoryLimit)
	if err := g.store.Save(ctx, sess); err != nil {
		log.Warn().Err(err).Str("session", sess.Key).Msg("session save failed")
	}
}

// recordIntervention fans one intervention out to every sink. The 5-cent
// savings credit matches the nominal cost of the call that did not happen.
func (g *Gateway) recordIntervention(sessionKey string, kind monitoring.InterventionKind, matchedTurn string, score float64) monitoring.InterventionRecord {
	rec := monitoring.InterventionRecord{
		ID:            uuid.New().String(),
		SessionKey:    sessionKey,
		Kind:          kind,
		MatchedTurnID: matchedTurn,
		Score:         score,
		At:            time.Now(),
	}
	g.metrics.RecordIntervention(kind)
	g.costTracker.RecordIntervention(config.SavedPerInterventionUSD)
	g.countIntervention(sessionKey)
	g.audit.RecordIntervention(rec)
	return rec
}

// finishBlocked writes the synthetic 200 for a blocked request and settles
// the per-request accounting. rec is nil for terminal-session blocks, which
// repeat an already-recorded intervention.
func (g *Gateway) finishBlocked(w http.ResponseWriter, start time.Time, requestID, sessionKey, model, msg string, rec *monitoring.InterventionRecord) {
	if rec != nil {
		g.hub.Publish(*rec)
	}
	g.metrics.RecordRequest("blocked", false)
	g.metrics.RecordOverhead(time.Since(start))
	g.auditRequest(requestID, start, sessionKey, "", model, http.StatusOK, "blocked")
	writeJSON(w, http.StatusOK, buildChatResponse(model, msg))
}

func (g *Gateway) auditRequest(requestID string, start time.Time, sessionKey, provider, model string, status int, outcome string) {
	g.audit.RecordRequest(monitoring.RequestEvent{
		RequestID:  requestID,
		At:         start,
		SessionKey: sessionKey,
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		Outcome:    outcome,
		Latency:    time.Since(start),
	})
}

// === FORWARDING ===

// forward sends the original body to the provider, retrying once on network
// failure or 5xx. The response body is fully read so it can be inspected
// before relay.
func (g *Gateway) forward(ctx context.Context, p providers.Provider, body []byte) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultUpstreamTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			g.metrics.RecordUpstreamRetry()
			select {
			case <-time.After(config.DefaultRetryBackoff):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimSuffix(p.Config.Endpoint, "/")+"/chat/completions",
			bytes.NewReader(body))
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		switch p.Config.Type {
		case config.ProviderBedrock:
			signer := g.signers[p.Name]
			if signer == nil {
				return nil, nil, fmt.Errorf("provider %s: no AWS credentials configured", p.Name)
			}
			if err := signer.SignRequest(ctx, req, body); err != nil {
				return nil, nil, fmt.Errorf("signing request for %s: %w", p.Name, err)
			}
		default:
			if p.Config.APIKey != "" {
				req.Header.Set("Authorization", "Bearer "+p.Config.APIKey)
			}
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt == 0 {
			lastErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
			continue
		}
		return resp, respBody, nil
	}
	return nil, nil, lastErr
}

// relayResponse copies the upstream status and content headers, then the
// already-read body.
func relayResponse(w http.ResponseWriter, resp *http.Response, body []byte) {
	for _, h := range []string{"Content-Type", "X-Request-Id", "Openai-Version"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}
