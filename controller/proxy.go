// Package controller implements the inbound HTTP surface: the proxy
// orchestrator with its failover loop, plus the health and model-catalog
// endpoints.
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/NodeNestor/CodeGate/common"
	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/ctxkey"
	"github.com/NodeNestor/CodeGate/guardrail"
	"github.com/NodeNestor/CodeGate/middleware"
	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/monitor"
	"github.com/NodeNestor/CodeGate/relay/adaptor/anthropic"
	"github.com/NodeNestor/CodeGate/relay/adaptor/codex"
	adaptor "github.com/NodeNestor/CodeGate/relay/adaptor/common"
	"github.com/NodeNestor/CodeGate/relay/adaptor/openai"
	"github.com/NodeNestor/CodeGate/relay/convert"
	"github.com/NodeNestor/CodeGate/relay/limiter"
	"github.com/NodeNestor/CodeGate/relay/modelcap"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
	"github.com/NodeNestor/CodeGate/relay/oauth"
	"github.com/NodeNestor/CodeGate/relay/route"
)

type forwardFunc func(ctx context.Context, account *model.Account, req *adaptor.ForwardRequest) (*adaptor.ForwardResult, error)

// Relay is the proxy orchestrator. One instance serves all requests; every
// field is safe for concurrent use.
type Relay struct {
	resolver *route.Resolver
	limiter  *limiter.RateLimiter
	cooldown *limiter.CooldownManager
	tokens   *oauth.TokenSource
	guard    *guardrail.Engine

	// seams for tests; production wiring uses the defaults from NewRelay
	forward       forwardFunc
	boolSetting   func(key string, def bool) bool
	markError     func(id int, status, message string)
	markActive    func(id int)
	recordUsage   func(u *model.UsageLog)
	recordRequest func(r *model.RequestLog)
}

// NewRelay wires the orchestrator against the shared stores and adaptors.
func NewRelay(resolver *route.Resolver, rl *limiter.RateLimiter, cooldown *limiter.CooldownManager,
	tokens *oauth.TokenSource, guard *guardrail.Engine) *Relay {
	return &Relay{
		resolver:    resolver,
		limiter:     rl,
		cooldown:    cooldown,
		tokens:      tokens,
		guard:       guard,
		forward:     dispatch,
		boolSetting: model.GetBoolSetting,
		markError: func(id int, status, message string) {
			_ = model.MarkAccountError(id, status, message)
		},
		markActive: func(id int) {
			_ = model.MarkAccountActive(id)
		},
		recordUsage:   model.RecordUsageAsync,
		recordRequest: model.RecordRequestAsync,
	}
}

// dispatch picks the provider forwarder for an account.
func dispatch(ctx context.Context, account *model.Account, req *adaptor.ForwardRequest) (*adaptor.ForwardResult, error) {
	switch {
	case account.Provider == model.ProviderAnthropic:
		return anthropic.Forward(ctx, req)
	case codex.Matches(account):
		return codex.Forward(ctx, req)
	default:
		return openai.Forward(ctx, req)
	}
}

// Proxy handles every authenticated /v1/* request: normalize, guard, route,
// forward with failover, convert back.
func (r *Relay) Proxy(c *gin.Context) {
	lg := gmw.GetLogger(c)
	start := time.Now()
	format := middleware.InboundFormat(c)

	body, err := common.GetRequestBody(c)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "cannot read request body", err)
		return
	}

	clientModel, stream, claudeRaw, err := normalizeRequest(format, body)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	c.Set(ctxkey.RequestModel, clientModel)

	guardOn := r.guard != nil && r.boolSetting(model.SettingGuardrailsOn, true)
	if guardOn {
		anonymized, detections, gerr := r.guard.AnonymizeJSON(claudeRaw)
		if gerr != nil {
			lg.Warn("anonymize request body", zap.Error(gerr))
		} else {
			claudeRaw = anonymized
			monitor.RecordGuardrailDetections("pre_call", detections)
		}
	}

	res, err := r.resolver.Resolve(gmw.Ctx(c), clientModel, c.GetInt(ctxkey.ConfigId))
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "route resolution failed", err)
		return
	}
	candidates := r.reorderByCooldown(res.Candidates)
	if len(candidates) == 0 {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, "no routable account for model "+clientModel, nil)
		return
	}

	var lastErr *relaymodel.ErrorWithStatusCode
	for i := range candidates {
		cand := &candidates[i]
		account := cand.Account
		accountID := strconv.Itoa(account.Id)
		last := i == len(candidates)-1

		if r.cooldown.IsOnCooldown(accountID) && !last {
			monitor.RecordFailover("cooldown")
			continue
		}

		if r.limiter.CheckAndRecord(accountID, account.RPMLimit) {
			lastErr = relaymodel.NewError(http.StatusTooManyRequests, "account rate limit reached", nil)
			if last {
				abortRelayError(c, lastErr)
				return
			}
			monitor.RecordFailover("local_rate_limit")
			continue
		}

		apiKey := account.AccessToken
		if account.IsOAuth() {
			apiKey, err = r.tokens.EnsureValidToken(gmw.Ctx(c), account)
			if err != nil {
				lg.Warn("oauth token refresh", zap.String("account", account.Name), zap.Error(err))
				r.markError(account.Id, model.AccountStatusExpired, err.Error())
				r.cooldown.Set(accountID, "oauth_refresh_failed", 0)
				lastErr = relaymodel.NewError(http.StatusBadGateway, "upstream credential refresh failed", err)
				monitor.RecordFailover("oauth")
				continue
			}
		}

		freq, berr := buildForward(c, format, cand, claudeRaw, clientModel, apiKey)
		if berr != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "cannot build upstream request", berr)
			return
		}

		resynced := false
	attempt:
		result, ferr := r.forward(gmw.Ctx(c), account, freq)
		if ferr != nil {
			lg.Warn("upstream transport failure", zap.String("account", account.Name), zap.Error(ferr))
			r.markError(account.Id, model.AccountStatusError, ferr.Error())
			r.cooldown.Set(accountID, "transport_error", 0)
			monitor.RecordFailover("transport")
			lastErr = relaymodel.NewError(http.StatusBadGateway, "upstream connection failed", ferr)
			if r.boolSetting(model.SettingAutoSwitchError, true) && !last {
				continue
			}
			abortRelayError(c, lastErr)
			return
		}

		status := result.StatusCode
		switch {
		case status == http.StatusUnauthorized && account.Provider == model.ProviderAnthropic && account.IsOAuth() && !resynced:
			_ = result.Close()
			if r.tokens.ResyncFromCredentialFile(account) {
				resynced = true
				freq.APIKey = account.AccessToken
				goto attempt
			}
			r.markError(account.Id, model.AccountStatusExpired, "upstream 401")
			lastErr = relaymodel.NewError(http.StatusBadGateway, "upstream authentication failed", nil)
			monitor.RecordFailover("auth")
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			_ = result.Close()
			r.markError(account.Id, model.AccountStatusExpired, "upstream "+strconv.Itoa(status))
			lastErr = relaymodel.NewError(http.StatusBadGateway, "upstream authentication failed", nil)
			monitor.RecordFailover("auth")
			continue

		case status == http.StatusTooManyRequests:
			retryAfter := limiter.ParseRetryAfter(result.Headers.Get("Retry-After"))
			message := readErrorMessage(result)
			r.markError(account.Id, model.AccountStatusRateLimited, message)
			r.cooldown.Set(accountID, "rate_limited", retryAfter)
			monitor.RecordRelay(account.Provider, account.Name, status, time.Since(start))
			lastErr = relaymodel.NewError(status, message, nil)
			if r.boolSetting(model.SettingAutoSwitchRateLimit, true) && !last {
				monitor.RecordFailover("rate_limited")
				continue
			}
			abortRelayError(c, lastErr)
			return

		case status >= http.StatusInternalServerError:
			message := readErrorMessage(result)
			r.markError(account.Id, model.AccountStatusError, message)
			r.cooldown.Set(accountID, "server_error", 0)
			monitor.RecordRelay(account.Provider, account.Name, status, time.Since(start))
			lastErr = relaymodel.NewError(status, message, nil)
			if r.boolSetting(model.SettingAutoSwitchError, true) && !last {
				monitor.RecordFailover("server_error")
				continue
			}
			abortRelayError(c, lastErr)
			return

		case status >= http.StatusBadRequest:
			// client-shaped upstream error; pass through verbatim
			r.passthrough(c, result)
			monitor.RecordRelay(account.Provider, account.Name, status, time.Since(start))
			return
		}

		// success
		r.cooldown.Clear(accountID)
		r.markActive(account.Id)

		strategy := res.Strategy
		if i > 0 {
			strategy += "+failover"
		}
		c.Header("X-Proxy-Account", account.Name)
		c.Header("X-Proxy-Strategy", strategy)
		c.Set(ctxkey.AccountName, account.Name)
		c.Set(ctxkey.RouteStrategy, strategy)

		var responseText string
		if result.IsStream {
			r.relayStream(c, format, cand, result, guardOn, clientModel)
		} else {
			responseText = r.relayBuffered(c, format, cand, result, guardOn, clientModel)
		}

		usage := result.Usage.Snapshot()
		if usage.CompletionTokens == 0 && responseText != "" {
			usage.CompletionTokens = EstimateTokens(responseText)
		}
		r.finishRequest(c, res, cand, usage, status, stream, clientModel, start)
		return
	}

	if lastErr == nil {
		lastErr = relaymodel.NewError(http.StatusBadGateway, "all upstream candidates failed", nil)
	}
	middleware.AbortWithError(c, http.StatusBadGateway, lastErr.Message, lastErr.RawError)
}

// normalizeRequest parses the inbound body and produces the Anthropic-shaped
// working copy the rest of the pipeline operates on.
func normalizeRequest(format relaymodel.InboundFormat, body []byte) (clientModel string, stream bool, claudeRaw []byte, err error) {
	if format == relaymodel.FormatOpenAI {
		var req relaymodel.OpenAIRequest
		if err = json.Unmarshal(body, &req); err != nil {
			return "", false, nil, err
		}
		if req.Model == "" {
			req.Model = config.DefaultModel
		}
		claudeReq := convert.OpenAIToClaudeRequest(&req)
		claudeRaw, err = json.Marshal(claudeReq)
		return req.Model, req.Stream, claudeRaw, err
	}

	var req relaymodel.ClaudeRequest
	if err = json.Unmarshal(body, &req); err != nil {
		return "", false, nil, err
	}
	clientModel = req.Model
	if clientModel == "" {
		clientModel = config.DefaultModel
	}
	// keep the raw body: pass-through must not drop unknown fields
	return clientModel, req.IsStream(), body, nil
}

// buildForward renders the outbound body in the candidate's native format.
func buildForward(c *gin.Context, format relaymodel.InboundFormat, cand *route.Candidate,
	claudeRaw []byte, clientModel, apiKey string) (*adaptor.ForwardRequest, error) {
	account := cand.Account
	routedModel := cand.TargetModel
	if routedModel == "" {
		routedModel = clientModel
	}

	freq := &adaptor.ForwardRequest{
		Method:            c.Request.Method,
		Headers:           c.Request.Header,
		APIKey:            apiKey,
		BaseURL:           account.BaseURL,
		AuthType:          account.AuthType,
		ExternalAccountId: account.ExternalAccountId,
		Provider:          account.Provider,
	}

	if account.Provider == model.ProviderAnthropic {
		outBody, err := renderClaudeBody(claudeRaw, routedModel)
		if err != nil {
			return nil, err
		}
		freq.Body = outBody
		freq.Path = "/v1/messages"
		if format == relaymodel.FormatClaude {
			// pass-through endpoints like count_tokens keep their path
			freq.Path = c.Request.URL.Path
		}
		return freq, nil
	}

	var claudeReq relaymodel.ClaudeRequest
	if err := json.Unmarshal(claudeRaw, &claudeReq); err != nil {
		return nil, err
	}
	out := convert.ClaudeToOpenAIRequest(&claudeReq, routedModel)
	outBody, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	freq.Body = outBody
	freq.Path = "/v1/chat/completions"
	return freq, nil
}

// renderClaudeBody applies the model override and output-token clamp onto the
// raw Anthropic-shaped body without disturbing other fields.
func renderClaudeBody(claudeRaw []byte, routedModel string) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(claudeRaw, &m); err != nil {
		return nil, err
	}
	m["model"] = routedModel
	if mt, ok := m["max_tokens"].(float64); ok && mt > 0 {
		m["max_tokens"] = modelcap.ClampMaxTokens(int(mt), routedModel)
	}
	return json.Marshal(m)
}

// reorderByCooldown pushes cooled-down accounts behind healthy ones while
// keeping the resolver's order within each group.
func (r *Relay) reorderByCooldown(candidates []route.Candidate) []route.Candidate {
	if len(candidates) < 2 {
		return candidates
	}
	ids := make([]string, len(candidates))
	byID := make(map[string][]route.Candidate, len(candidates))
	for i, cand := range candidates {
		id := strconv.Itoa(cand.Account.Id)
		ids[i] = id
		byID[id] = append(byID[id], cand)
	}

	ordered := make([]route.Candidate, 0, len(candidates))
	for _, id := range r.cooldown.SortByCooldown(ids) {
		queue := byID[id]
		if len(queue) == 0 {
			continue
		}
		ordered = append(ordered, queue[0])
		byID[id] = queue[1:]
	}
	return ordered
}

// finishRequest records usage, request log and metrics after the response is
// already with the client.
func (r *Relay) finishRequest(c *gin.Context, res *route.Resolution, cand *route.Candidate,
	usage relaymodel.Usage, status int, stream bool, clientModel string, start time.Time) {
	account := cand.Account

	routedModel := usage.Model
	if routedModel == "" {
		routedModel = cand.TargetModel
	}
	if routedModel == "" {
		routedModel = clientModel
	}

	r.recordUsage(&model.UsageLog{
		RequestId:           c.GetString(ctxkey.RequestId),
		AccountId:           account.Id,
		ConfigId:            res.ConfigId,
		TenantId:            c.GetInt(ctxkey.TenantId),
		Tier:                res.Tier,
		OriginalModel:       clientModel,
		RoutedModel:         routedModel,
		PromptTokens:        usage.PromptTokens,
		CompletionTokens:    usage.CompletionTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheCreationTokens,
		CostUSD: model.CostUSD(routedModel, usage.PromptTokens, usage.CompletionTokens,
			usage.CacheReadTokens, usage.CacheCreationTokens),
	})
	r.recordRequest(&model.RequestLog{
		RequestId:     c.GetString(ctxkey.RequestId),
		TenantId:      c.GetInt(ctxkey.TenantId),
		InboundFormat: c.GetString(ctxkey.InboundAPI),
		Model:         clientModel,
		AccountName:   account.Name,
		Strategy:      c.GetString(ctxkey.RouteStrategy),
		Status:        status,
		LatencyMs:     time.Since(start).Milliseconds(),
		Stream:        stream,
	})
	monitor.RecordRelay(account.Provider, account.Name, status, time.Since(start))
	monitor.RecordTokens(account.Provider, usage)
}

// passthrough copies an upstream response to the client unchanged.
func (r *Relay) passthrough(c *gin.Context, result *adaptor.ForwardResult) {
	defer result.Close()
	contentType := result.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.DataFromReader(result.StatusCode, -1, contentType, result.Body, nil)
}

// abortRelayError renders a failover-loop error in the inbound wire format.
func abortRelayError(c *gin.Context, e *relaymodel.ErrorWithStatusCode) {
	c.JSON(e.StatusCode, e.Envelope(middleware.InboundFormat(c)))
	c.Abort()
}

// readErrorMessage extracts a short error message from an upstream error
// body, falling back to the raw payload.
func readErrorMessage(result *adaptor.ForwardResult) string {
	defer result.Close()
	payload := make([]byte, 0, 512)
	buf := make([]byte, 512)
	for len(payload) < 4096 {
		n, err := result.Body.Read(buf)
		payload = append(payload, buf[:n]...)
		if err != nil {
			break
		}
	}
	if len(payload) == 0 {
		return "upstream error"
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(payload) > 512 {
		payload = payload[:512]
	}
	return string(payload)
}
