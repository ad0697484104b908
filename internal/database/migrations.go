package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillMessageSequence = "2026-07-14_backfill_message_sequence"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillMessageSequence, apply: backfillMessageSequence},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillMessageSequence assigns per-room sequence numbers to messages that
// predate the seq column, ordering by insertion timestamp with the row id as
// tiebreaker, then advances each room's counter to its log head.
func backfillMessageSequence(db *gorm.DB) error {
	assignSeq := `
		UPDATE chat_messages SET seq = (
			SELECT COUNT(*) FROM chat_messages AS earlier
			WHERE earlier.room_id = chat_messages.room_id
			  AND (earlier.created_at < chat_messages.created_at
			       OR (earlier.created_at = chat_messages.created_at AND earlier.id <= chat_messages.id))
		)
		WHERE seq = 0;`
	if err := db.Exec(assignSeq).Error; err != nil {
		return err
	}

	advanceRooms := `
		UPDATE chat_rooms SET seq = (
			SELECT COALESCE(MAX(m.seq), 0) FROM chat_messages m WHERE m.room_id = chat_rooms.id
		);`
	return db.Exec(advanceRooms).Error
}
