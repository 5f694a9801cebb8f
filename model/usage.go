package model

import (
	"context"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/NodeNestor/CodeGate/common/logger"
)

// UsageLog is one recorded upstream call. Rows are written fire-and-forget
// after the response is already on its way to the client.
type UsageLog struct {
	Id        int    `json:"id"`
	RequestId string `json:"request_id" gorm:"size:64;index"`
	AccountId int    `json:"account_id" gorm:"index"`
	ConfigId  int    `json:"config_id"`
	TenantId  int    `json:"tenant_id"`
	Tier      string `json:"tier" gorm:"size:16"`

	OriginalModel string `json:"original_model"`
	RoutedModel   string `json:"routed_model"`

	PromptTokens        int     `json:"prompt_tokens"`
	CompletionTokens    int     `json:"completion_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CostUSD             float64 `json:"cost_usd"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli;index"`
}

func (u *UsageLog) Insert() error {
	return errors.Wrap(DB.Create(u).Error, "insert usage log")
}

// RecordUsageAsync writes the row in the background; recording must never
// block or fail the response.
func RecordUsageAsync(u *UsageLog) {
	go func() {
		if err := u.Insert(); err != nil {
			logger.Logger.Warn("record usage", zap.Error(err))
		}
		CacheDelete(context.Background(), monthlySpendCacheKey(u.AccountId))
	}()
}

func monthStartMilli(now time.Time) int64 {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start.UnixMilli()
}

func monthlySpendCacheKey(accountId int) string {
	return "monthly_spend:" + strconv.Itoa(accountId)
}

// MonthlySpend returns the account's current-month cost in USD. Values are
// cached briefly; routing decisions tolerate slightly stale spend.
func MonthlySpend(ctx context.Context, accountId int) (float64, error) {
	key := monthlySpendCacheKey(accountId)
	if cached, ok := CacheGet(ctx, key); ok {
		if spend, err := strconv.ParseFloat(cached, 64); err == nil {
			return spend, nil
		}
	}

	var spend float64
	err := DB.Model(&UsageLog{}).
		Where("account_id = ? AND created_at >= ?", accountId, monthStartMilli(time.Now())).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&spend).Error
	if err != nil {
		return 0, errors.Wrapf(err, "monthly spend of account %d", accountId)
	}

	CacheSet(ctx, key, strconv.FormatFloat(spend, 'f', -1, 64), 30*time.Second)
	return spend, nil
}
