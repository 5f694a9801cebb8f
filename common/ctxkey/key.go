// Package ctxkey centralizes the gin context keys shared across middleware,
// controllers and the relay pipeline.
package ctxkey

const (
	RequestId      = "request_id"
	KeyRequestBody = "key_request_body"

	TenantId     = "tenant_id"
	TenantName   = "tenant_name"
	ConfigId     = "config_id"
	InboundAPI   = "inbound_api"
	RequestModel = "request_model"

	AccountId       = "account_id"
	AccountName     = "account_name"
	AccountProvider = "account_provider"
	RouteStrategy   = "route_strategy"

	GuardrailSession = "guardrail_session"
)
