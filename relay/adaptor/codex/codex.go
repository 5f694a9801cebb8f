// Package codex dispatches ChatGPT-subscription accounts: OAuth OpenAI
// accounts bound to a workspace via an external account id, served by the
// codex backend instead of the public API.
package codex

import (
	"context"

	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/adaptor/common"
	"github.com/NodeNestor/CodeGate/relay/adaptor/openai"
)

const defaultBaseURL = "https://chatgpt.com/backend-api/codex"

// Matches reports whether the account takes the subscription dispatch path.
func Matches(account *model.Account) bool {
	if account.Provider != model.ProviderOpenAI && account.Provider != model.ProviderOpenAISub {
		return false
	}
	return account.IsOAuth() && account.ExternalAccountId != ""
}

// Forward routes through the OpenAI forwarder with the codex backend as the
// default base. The subscription headers come from the external account id
// already present on the request.
func Forward(ctx context.Context, req *common.ForwardRequest) (*common.ForwardResult, error) {
	if req.BaseURL == "" {
		req.BaseURL = defaultBaseURL
	}
	return openai.Forward(ctx, req)
}
