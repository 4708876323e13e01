package domain

import (
	"context"
	"fmt"
	"time"
)

// Setting keys the orchestrator reads from the shared datastore. Datastore
// values take precedence over environment configuration, which takes
// precedence over built-in defaults.
const (
	SettingStalenessWindowSeconds = "router.staleness_window_seconds"
)

// ProviderSettingKey builds the datastore key for a provider credential
// field, e.g. provider.tensorrack.project_id.
func ProviderSettingKey(providerCode, field string) string {
	return fmt.Sprintf("provider.%s.%s", providerCode, field)
}

// Setting is one datastore-scoped configuration row.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey;size:128"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Setting) TableName() string { return "settings" }

// SettingsReader reads datastore-scoped configuration. The second return
// reports whether the key exists; absence is not an error.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}
