package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Provider tags.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenAISub  = "openai_sub"
	ProviderOpenRouter = "openrouter"
	ProviderGLM        = "glm"
	ProviderCerebras   = "cerebras"
	ProviderDeepSeek   = "deepseek"
	ProviderGemini     = "gemini"
	ProviderMiniMax    = "minimax"
	ProviderCustom     = "custom"
)

// Auth kinds.
const (
	AuthTypeAPIKey = "api_key"
	AuthTypeOAuth  = "oauth"
)

// Account health states.
const (
	AccountStatusUnknown     = "unknown"
	AccountStatusActive      = "active"
	AccountStatusExpired     = "expired"
	AccountStatusError       = "error"
	AccountStatusRateLimited = "rate_limited"
)

// Account is one authenticated upstream identity.
type Account struct {
	Id       int    `json:"id"`
	Name     string `json:"name" gorm:"index"`
	Provider string `json:"provider" gorm:"size:32;index"`
	AuthType string `json:"auth_type" gorm:"size:16;default:api_key"`

	// secret material; callers encrypt at rest before Save
	AccessToken  string `json:"-" gorm:"type:text"`
	RefreshToken string `json:"-" gorm:"type:text"`
	ExpiresAt    int64  `json:"expires_at" gorm:"bigint"` // epoch ms, oauth only

	BaseURL           string  `json:"base_url"`
	Priority          int     `json:"priority"`
	RPMLimit          int     `json:"rpm_limit"`      // 0 = unlimited
	MonthlyBudget     float64 `json:"monthly_budget"` // USD, 0 = uncapped
	Enabled           bool    `json:"enabled" gorm:"default:true"`
	ExternalAccountId string  `json:"external_account_id"`

	LastError         string `json:"last_error" gorm:"type:text"`
	LastErrorTime     int64  `json:"last_error_time" gorm:"bigint"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
	Status            string `json:"status" gorm:"size:16;default:unknown"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// IsOAuth reports whether the account authenticates with an OAuth token.
func (a *Account) IsOAuth() bool { return a.AuthType == AuthTypeOAuth }

// TokenExpiresWithin reports whether the OAuth token expires within d.
func (a *Account) TokenExpiresWithin(d time.Duration) bool {
	if a.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(d).UnixMilli() >= a.ExpiresAt
}

func GetAccountById(id int) (*Account, error) {
	var account Account
	if err := DB.First(&account, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get account %d", id)
	}
	return &account, nil
}

// ListEnabledAccounts returns enabled accounts, optionally filtered by
// provider ("" = all), ordered by descending priority.
func ListEnabledAccounts(provider string) ([]*Account, error) {
	var accounts []*Account
	tx := DB.Where("enabled = ?", true)
	if provider != "" {
		tx = tx.Where("provider = ?", provider)
	}
	if err := tx.Order("priority desc").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "list enabled accounts")
	}
	return accounts, nil
}

func (a *Account) Insert() error {
	return errors.Wrap(DB.Create(a).Error, "insert account")
}

func (a *Account) Update() error {
	return errors.Wrap(DB.Save(a).Error, "update account")
}

func DeleteAccount(id int) error {
	return errors.Wrapf(DB.Delete(&Account{}, "id = ?", id).Error, "delete account %d", id)
}

// MarkAccountError records a failed attempt and moves the account into
// status, one of error/expired/rate_limited.
func MarkAccountError(id int, status, message string) error {
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
		"status":             status,
		"last_error":         message,
		"last_error_time":    time.Now().UnixMilli(),
		"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
	}).Error
	return errors.Wrapf(err, "mark account %d %s", id, status)
}

// MarkAccountActive resets the health fields after any 2xx.
func MarkAccountActive(id int) error {
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(map[string]any{
		"status":             AccountStatusActive,
		"consecutive_errors": 0,
	}).Error
	return errors.Wrapf(err, "mark account %d active", id)
}

// UpdateAccountTokens persists refreshed OAuth credentials.
func UpdateAccountTokens(id int, accessToken, refreshToken string, expiresAt int64) error {
	updates := map[string]any{
		"access_token": accessToken,
		"expires_at":   expiresAt,
		"status":       AccountStatusActive,
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	err := DB.Model(&Account{}).Where("id = ?", id).Updates(updates).Error
	return errors.Wrapf(err, "update account %d tokens", id)
}
