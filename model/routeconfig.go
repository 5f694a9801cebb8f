package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Selection strategies.
const (
	StrategyPriority    = "priority"
	StrategyRoundRobin  = "round-robin"
	StrategyLeastUsed   = "least-used"
	StrategyBudgetAware = "budget-aware"
)

// RouteConfig is a named set of tier assignments. At most one config is
// globally active at a time.
type RouteConfig struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active" gorm:"index"`
	Strategy string `json:"strategy" gorm:"size:16;default:priority"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// TierAssignment binds one tier to one account within a config.
type TierAssignment struct {
	Id          int    `json:"id"`
	ConfigId    int    `json:"config_id" gorm:"index"`
	Tier        string `json:"tier" gorm:"size:16"`
	AccountId   int    `json:"account_id" gorm:"index"`
	Priority    int    `json:"priority"`
	TargetModel string `json:"target_model"` // overrides the client model when set

	CreatedAt int64 `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
}

func GetRouteConfigById(id int) (*RouteConfig, error) {
	var cfg RouteConfig
	if err := DB.First(&cfg, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get route config %d", id)
	}
	return &cfg, nil
}

// GetActiveRouteConfig returns the single globally-active config, or nil if
// none is active.
func GetActiveRouteConfig() (*RouteConfig, error) {
	var cfg RouteConfig
	err := DB.First(&cfg, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get active route config")
	}
	return &cfg, nil
}

// Activate makes this config the single active one.
func (c *RouteConfig) Activate() error {
	return DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&RouteConfig{}).Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return errors.Wrap(err, "deactivate configs")
		}
		if err := tx.Model(c).Update("is_active", true).Error; err != nil {
			return errors.Wrap(err, "activate config")
		}
		return nil
	})
}

func (c *RouteConfig) Insert() error {
	return errors.Wrap(DB.Create(c).Error, "insert route config")
}

func (c *RouteConfig) Update() error {
	return errors.Wrap(DB.Save(c).Error, "update route config")
}

func DeleteRouteConfig(id int) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&TierAssignment{}, "config_id = ?", id).Error; err != nil {
			return errors.Wrap(err, "delete tier assignments")
		}
		return errors.Wrapf(tx.Delete(&RouteConfig{}, "id = ?", id).Error, "delete route config %d", id)
	})
}

// ListTierAssignments returns a config's assignments for one tier, or all of
// them when tier is empty.
func ListTierAssignments(configId int, tier string) ([]*TierAssignment, error) {
	var assignments []*TierAssignment
	tx := DB.Where("config_id = ?", configId)
	if tier != "" {
		tx = tx.Where("tier = ?", tier)
	}
	if err := tx.Find(&assignments).Error; err != nil {
		return nil, errors.Wrapf(err, "list tier assignments of config %d", configId)
	}
	return assignments, nil
}

func (a *TierAssignment) Insert() error {
	return errors.Wrap(DB.Create(a).Error, "insert tier assignment")
}

func DeleteTierAssignment(id int) error {
	return errors.Wrapf(DB.Delete(&TierAssignment{}, "id = ?", id).Error, "delete tier assignment %d", id)
}
