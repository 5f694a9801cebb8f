package codex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NodeNestor/CodeGate/model"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		account model.Account
		want    bool
	}{
		{
			name: "openai oauth with workspace",
			account: model.Account{
				Provider: model.ProviderOpenAI, AuthType: model.AuthTypeOAuth, ExternalAccountId: "acct_1",
			},
			want: true,
		},
		{
			name: "openai_sub oauth with workspace",
			account: model.Account{
				Provider: model.ProviderOpenAISub, AuthType: model.AuthTypeOAuth, ExternalAccountId: "acct_1",
			},
			want: true,
		},
		{
			name: "api key account",
			account: model.Account{
				Provider: model.ProviderOpenAI, AuthType: model.AuthTypeAPIKey, ExternalAccountId: "acct_1",
			},
			want: false,
		},
		{
			name: "no workspace binding",
			account: model.Account{
				Provider: model.ProviderOpenAI, AuthType: model.AuthTypeOAuth,
			},
			want: false,
		},
		{
			name: "anthropic oauth",
			account: model.Account{
				Provider: model.ProviderAnthropic, AuthType: model.AuthTypeOAuth, ExternalAccountId: "acct_1",
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(&tt.account))
		})
	}
}
