package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TelemetryPayload is the body a client installation reports. FirstInstallDate is the identity
// of the installation and Platform is the only other mandatory field. Optional fields are
// pointers so that an absent or null value is stored as NULL.
type TelemetryPayload struct {
	FirstInstallDate string  `json:"first_install_date" yaml:"first_install_date" gorm:"not null;uniqueIndex"`
	Platform         string  `json:"platform" yaml:"platform" gorm:"not null"`
	Locale           *string `json:"locale" yaml:"locale"`
	Timezone         *string `json:"timezone" yaml:"timezone"`

	TotalUses        *int64   `json:"total_uses" yaml:"total_uses"`
	ActiveDays       *int64   `json:"active_days" yaml:"active_days"`
	DaysSinceInstall *int64   `json:"days_since_install" yaml:"days_since_install"`
	RetentionRate    *float64 `json:"retention_rate" yaml:"retention_rate"`
	LastUsedDate     *string  `json:"last_used_date" yaml:"last_used_date"`

	HasLoggedIn       *bool   `json:"has_logged_in" yaml:"has_logged_in"`
	SignupMethod      *string `json:"signup_method" yaml:"signup_method"`
	AuthButtonClicked *bool   `json:"auth_button_clicked" yaml:"auth_button_clicked"`

	OnboardingCompleted *bool   `json:"onboarding_completed" yaml:"onboarding_completed"`
	TutorialStatus      *string `json:"tutorial_status" yaml:"tutorial_status"`
	TutorialCurrentStep *int64  `json:"tutorial_current_step" yaml:"tutorial_current_step"`

	QuickActionUsageCount *int64 `json:"quick_action_usage_count" yaml:"quick_action_usage_count"`
	ShortcutUsageCount    *int64 `json:"shortcut_usage_count" yaml:"shortcut_usage_count"`
}

// AnalyticsRecord is the single row stored per installation.
type AnalyticsRecord struct {
	ID               uint `json:"-" yaml:"-" gorm:"primaryKey"`
	TelemetryPayload `yaml:",inline" gorm:"embedded"`
	// The origin the latest report came from. Used for rate limiting, never for identity.
	ClientIP  string    `json:"client_ip" yaml:"client_ip" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

func (AnalyticsRecord) TableName() string {
	return "ai_panel_analytics"
}

// Every column rewritten when a report arrives for an identity that already exists. created_at
// is not in the list: it keeps the time of the first report.
var overwriteColumns = []string{
	"platform",
	"locale",
	"timezone",
	"total_uses",
	"active_days",
	"days_since_install",
	"retention_rate",
	"last_used_date",
	"has_logged_in",
	"signup_method",
	"auth_button_clicked",
	"onboarding_completed",
	"tutorial_status",
	"tutorial_current_step",
	"quick_action_usage_count",
	"shortcut_usage_count",
	"client_ip",
	"updated_at",
}

// UpsertAnalyticsRecord inserts record, or overwrites every attribute of the record sharing its
// FirstInstallDate. It is a single statement so the write is all-or-nothing.
func (db *DB) UpsertAnalyticsRecord(ctx context.Context, record *AnalyticsRecord) error {
	tx := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "first_install_date"}},
		DoUpdates: clause.AssignmentColumns(overwriteColumns),
	}).Create(record)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

// CountAnalyticsRecordsFromOrigin counts the records attributed to origin that were created at
// or after since.
func (db *DB) CountAnalyticsRecordsFromOrigin(ctx context.Context, origin string, since time.Time) (int64, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&AnalyticsRecord{}).Where("client_ip = ? AND created_at >= ?", origin, since.UTC()).Count(&cnt)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt, nil
}

// AnalyticsRecordByIdentity returns the record for firstInstallDate, or nil if there is none.
func (db *DB) AnalyticsRecordByIdentity(ctx context.Context, firstInstallDate string) (*AnalyticsRecord, error) {
	var record AnalyticsRecord
	tx := db.WithContext(ctx).Where("first_install_date = ?", firstInstallDate).First(&record)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return &record, nil
}

// RecentAnalyticsRecords returns up to limit records updated at or after since, newest first.
func (db *DB) RecentAnalyticsRecords(ctx context.Context, since time.Time, limit int) ([]*AnalyticsRecord, error) {
	var records []*AnalyticsRecord
	tx := db.WithContext(ctx).Where("updated_at >= ?", since.UTC()).Order("updated_at DESC").Limit(limit).Find(&records)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return records, nil
}

func (db *DB) CountAllAnalyticsRecords(ctx context.Context) (int64, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&AnalyticsRecord{}).Count(&cnt)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt, nil
}

// Unsafe_DeleteAllAnalyticsRecords wipes the table. Only used by tests.
func (db *DB) Unsafe_DeleteAllAnalyticsRecords(ctx context.Context) error {
	tx := db.WithContext(ctx).Exec("DELETE FROM " + AnalyticsRecord{}.TableName())
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}
