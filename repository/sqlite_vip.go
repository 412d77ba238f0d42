package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

type sqliteVipRepo struct {
	db *sql.DB
}

// NewSQLiteVipRepo creates the SQLite VipRepository.
func NewSQLiteVipRepo(db *sql.DB) VipRepository {
	return &sqliteVipRepo{db: db}
}

func (r *sqliteVipRepo) GetForUser(ctx context.Context, userID string) (*models.VipLevel, error) {
	query := `
		SELECT v.id, v.name, v.priority, v.badge_url
		FROM user_vip_levels u
		INNER JOIN vip_levels v ON v.id = u.vip_level_id
		WHERE u.user_id = ?`

	v := &models.VipLevel{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&v.ID, &v.Name, &v.Priority, &v.BadgeURL)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vip level: %w", database.Classify(err))
	}

	return v, nil
}
