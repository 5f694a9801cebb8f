package model

import (
	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/NodeNestor/CodeGate/common/logger"
)

// RequestLog is one proxied request for operator visibility.
type RequestLog struct {
	Id            int    `json:"id"`
	RequestId     string `json:"request_id" gorm:"size:64;index"`
	TenantId      int    `json:"tenant_id"`
	InboundFormat string `json:"inbound_format" gorm:"size:16"`
	Model         string `json:"model"`
	AccountName   string `json:"account_name"`
	Strategy      string `json:"strategy" gorm:"size:32"`
	Status        int    `json:"status"`
	LatencyMs     int64  `json:"latency_ms"`
	Stream        bool   `json:"stream"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli;index"`
}

func (r *RequestLog) Insert() error {
	return errors.Wrap(DB.Create(r).Error, "insert request log")
}

// RecordRequestAsync logs the request without blocking the response path.
func RecordRequestAsync(r *RequestLog) {
	go func() {
		if err := r.Insert(); err != nil {
			logger.Logger.Warn("record request log", zap.Error(err))
		}
	}()
}

// PrivacyMapping is an audit row for one emitted guardrail replacement. The
// replacement itself carries everything needed for reversal; this table is
// operator visibility only.
type PrivacyMapping struct {
	Id          int    `json:"id"`
	Category    string `json:"category" gorm:"size:32"`
	Replacement string `json:"replacement" gorm:"type:text"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli;index"`
}

// RecordPrivacyMappingsAsync persists audit rows for a batch of
// replacements.
func RecordPrivacyMappingsAsync(rows []*PrivacyMapping) {
	if len(rows) == 0 {
		return
	}
	go func() {
		if err := DB.Create(rows).Error; err != nil {
			logger.Logger.Warn("record privacy mappings", zap.Error(err))
		}
	}()
}
