package model

import (
	"strconv"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Well-known setting keys.
const (
	SettingProxyAPIKey  = "proxy_api_key"
	SettingGuardrailKey = "guardrail_key"
	SettingGuardrailsOn = "guardrails_enabled"

	SettingAutoSwitchRateLimit = "auto_switch_on_rate_limit"
	SettingAutoSwitchError     = "auto_switch_on_error"
)

// Setting is one row of the key/value settings store.
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey;size:64"`
	Value string `json:"value" gorm:"type:text"`

	UpdatedAt int64 `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// GetSetting returns the value for key, or "" when unset.
func GetSetting(key string) (string, error) {
	var setting Setting
	err := DB.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "get setting %s", key)
	}
	return setting.Value, nil
}

// PutSetting upserts one key. Update-first to avoid unique conflicts under
// concurrent writers.
func PutSetting(key, value string) error {
	tx := DB.Model(&Setting{}).Where("key = ?", key).Update("value", value)
	if tx.Error != nil {
		return errors.Wrapf(tx.Error, "update setting %s", key)
	}
	if tx.RowsAffected > 0 {
		return nil
	}
	err := DB.Create(&Setting{Key: key, Value: value}).Error
	return errors.Wrapf(err, "insert setting %s", key)
}

// GetBoolSetting parses a boolean setting, returning def when unset or
// unreadable.
func GetBoolSetting(key string, def bool) bool {
	value, err := GetSetting(key)
	if err != nil || value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
