package model

import "time"

// MenuEntry is one button of a configurable menu.
type MenuEntry struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Menu is a persisted menu configuration blob, keyed by menu name
// ("main", "admin", ...). Stored as JSONB with a menus.json file fallback
// for environments without the table initialized.
type Menu struct {
	Key     string      `json:"key"`
	Title   string      `json:"title"`
	Entries []MenuEntry `json:"entries"`
}

// AppSetting is a single key-value process setting (maintenance flag,
// relabelled buttons).
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys.
const (
	SettingMaintenanceMode = "maintenance_mode"
)
