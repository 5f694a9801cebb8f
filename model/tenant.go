package model

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Tenant is a proxy API key holder with its own config override and rate cap.
type Tenant struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	KeyHash  string `json:"-" gorm:"size:64;uniqueIndex"`
	ConfigId int    `json:"config_id"` // 0 = use the globally-active config
	RPMLimit int    `json:"rpm_limit"` // 0 = unlimited
	Enabled  bool   `json:"enabled" gorm:"default:true"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// HashTenantKey derives the deterministic lookup hash for a proxy key.
func HashTenantKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GetTenantByKey looks a tenant up by its proxy key. Returns nil when no
// tenant matches.
func GetTenantByKey(key string) (*Tenant, error) {
	var tenant Tenant
	err := DB.First(&tenant, "key_hash = ? AND enabled = ?", HashTenantKey(key), true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get tenant by key")
	}
	return &tenant, nil
}

func (t *Tenant) Insert() error {
	return errors.Wrap(DB.Create(t).Error, "insert tenant")
}

func (t *Tenant) Update() error {
	return errors.Wrap(DB.Save(t).Error, "update tenant")
}

func DeleteTenant(id int) error {
	return errors.Wrapf(DB.Delete(&Tenant{}, "id = ?", id).Error, "delete tenant %d", id)
}
