package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

type sqliteRoomBanRepo struct {
	db *sql.DB
}

// NewSQLiteRoomBanRepo creates the SQLite RoomBanRepository.
func NewSQLiteRoomBanRepo(db *sql.DB) RoomBanRepository {
	return &sqliteRoomBanRepo{db: db}
}

func (r *sqliteRoomBanRepo) Create(ctx context.Context, ban *models.RoomBan) error {
	query := `
		INSERT INTO room_bans (room_id, user_id, banned_by)
		VALUES (?, ?, ?)
		RETURNING created_at`

	var createdAt sqliteTime
	err := r.db.QueryRowContext(ctx, query, ban.RoomID, ban.UserID, ban.BannedBy).Scan(&createdAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: user already banned", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create room ban: %w", database.Classify(err))
	}

	ban.CreatedAt = createdAt.Time
	return nil
}

func (r *sqliteRoomBanRepo) Delete(ctx context.Context, roomID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM room_bans WHERE room_id = ? AND user_id = ?`, roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete room ban: %w", database.Classify(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}

	return nil
}
