package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kasabot/internal/model"

	"gorm.io/gorm"
)

// KasaRow is the kasa_snapshots table. Exported so the composition root can
// pass it to AutoMigrate.
type KasaRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"index;not null"`
	Position      int    `gorm:"not null"`
	Ordinal       int    `gorm:"not null"`
	LicenseKey    string `gorm:"not null"`
	PinCode       string `gorm:"not null"`
	Name          string
	ShiftID       *string
	ShiftStart    *string
	WatermarkTime *string
	WatermarkID   *string
	WatermarkSeen string `gorm:"type:text"`
	ShiftClosed   bool
	UpdatedAt     time.Time
}

func (KasaRow) TableName() string { return "kasa_snapshots" }

type gormStore struct{ db *gorm.DB }

// NewGormKasaStore keeps one row per device in kasa_snapshots.
func NewGormKasaStore(db *gorm.DB) KasaStore { return &gormStore{db: db} }

func (s *gormStore) LoadAll(ctx context.Context) (map[string][]model.Kasa, error) {
	var rows []KasaRow
	if err := s.db.WithContext(ctx).Order("user_id ASC, position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load kasa snapshots: %w", err)
	}

	users := make(map[string][]model.Kasa)
	for _, row := range rows {
		snap := kasaSnapshot{
			ID:            row.ID,
			Index:         row.Ordinal,
			LicenseKey:    row.LicenseKey,
			PinCode:       row.PinCode,
			Name:          row.Name,
			ShiftID:       row.ShiftID,
			ShiftStart:    row.ShiftStart,
			WatermarkTime: row.WatermarkTime,
			WatermarkID:   row.WatermarkID,
			ShiftClosed:   row.ShiftClosed,
		}
		if row.WatermarkSeen != "" {
			if err := json.Unmarshal([]byte(row.WatermarkSeen), &snap.WatermarkSeen); err != nil {
				return nil, fmt.Errorf("kasa %s seen ids: %w", row.ID, err)
			}
		}
		k, err := fromSnapshot(row.UserID, snap)
		if err != nil {
			return nil, err
		}
		users[row.UserID] = append(users[row.UserID], k)
	}
	return users, nil
}

func (s *gormStore) SaveAll(ctx context.Context, users map[string][]model.Kasa) error {
	now := time.Now().UTC()
	var rows []KasaRow
	for _, userID := range sortedUsers(users) {
		for pos, k := range users[userID] {
			snap := toSnapshot(k)
			row := KasaRow{
				ID:            snap.ID,
				UserID:        userID,
				Position:      pos,
				Ordinal:       snap.Index,
				LicenseKey:    snap.LicenseKey,
				PinCode:       snap.PinCode,
				Name:          snap.Name,
				ShiftID:       snap.ShiftID,
				ShiftStart:    snap.ShiftStart,
				WatermarkTime: snap.WatermarkTime,
				WatermarkID:   snap.WatermarkID,
				ShiftClosed:   snap.ShiftClosed,
				UpdatedAt:     now,
			}
			if len(snap.WatermarkSeen) > 0 {
				seen, err := json.Marshal(snap.WatermarkSeen)
				if err != nil {
					return fmt.Errorf("kasa %s seen ids: %w", snap.ID, err)
				}
				row.WatermarkSeen = string(seen)
			}
			rows = append(rows, row)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&KasaRow{}).Error; err != nil {
			return fmt.Errorf("clear kasa snapshots: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("write kasa snapshots: %w", err)
		}
		return nil
	})
}
