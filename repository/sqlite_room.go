package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

type sqliteRoomRepo struct {
	db *sql.DB
}

// NewSQLiteRoomRepo creates the SQLite RoomRepository.
func NewSQLiteRoomRepo(db *sql.DB) RoomRepository {
	return &sqliteRoomRepo{db: db}
}

func (r *sqliteRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}

	query := `
		INSERT INTO rooms (id, name, owner_id, agency_id, featured, max_speakers)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	var createdAt sqliteTime
	err := r.db.QueryRowContext(ctx, query,
		room.ID, room.Name, room.OwnerID, room.AgencyID, room.Featured, room.MaxSpeakers,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", database.Classify(err))
	}

	room.CreatedAt = createdAt.Time
	return nil
}

func (r *sqliteRoomRepo) GetByID(ctx context.Context, roomID string) (*models.Room, error) {
	query := `
		SELECT id, name, owner_id, agency_id, featured, max_speakers, created_at
		FROM rooms WHERE id = ?`

	room := &models.Room{}
	var (
		agencyID  sql.NullString
		createdAt sqliteTime
	)
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(
		&room.ID, &room.Name, &room.OwnerID, &agencyID,
		&room.Featured, &room.MaxSpeakers, &createdAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", database.Classify(err))
	}

	if agencyID.Valid {
		room.AgencyID = &agencyID.String
	}
	room.CreatedAt = createdAt.Time
	return room, nil
}
