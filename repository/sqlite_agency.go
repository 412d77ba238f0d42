package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
)

type sqliteAgencyRepo struct {
	db   *sql.DB
	feed *changefeed.Feed
}

// NewSQLiteAgencyRepo creates the SQLite AgencyRepository. Membership
// writes are published on feed, so role caches on every instance can
// drop what changed.
func NewSQLiteAgencyRepo(db *sql.DB, feed *changefeed.Feed) AgencyRepository {
	return &sqliteAgencyRepo{db: db, feed: feed}
}

// publishMembership puts a committed membership write on the feed.
func (r *sqliteAgencyRepo) publishMembership(ctx context.Context, op changefeed.Op, m *models.Membership) {
	row, err := json.Marshal(m)
	if err != nil {
		log.Printf("[agencies] failed to encode membership change for %s/%s: %v", m.AgencyID, m.UserID, err)
		return
	}
	r.feed.Publish(ctx, changefeed.Change{
		Table: MembershipsTable,
		Op:    op,
		Columns: map[string]string{
			"agency_id": m.AgencyID,
			"user_id":   m.UserID,
		},
		Row: row,
	})
}

func (r *sqliteAgencyRepo) Create(ctx context.Context, agency *models.Agency) error {
	if agency.ID == "" {
		agency.ID = uuid.NewString()
	}

	owner := &models.Membership{
		AgencyID: agency.ID,
		UserID:   agency.OwnerID,
		Role:     models.RoleOwner,
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var createdAt sqliteTime
		err := tx.QueryRowContext(ctx, `
			INSERT INTO agencies (id, name, owner_id, default_mic_policy, theme_color, theme_json)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING created_at`,
			agency.ID, agency.Name, agency.OwnerID, agency.DefaultMicPolicy,
			agency.ThemeColor, agency.ThemeJSON,
		).Scan(&createdAt)
		if err != nil {
			return fmt.Errorf("failed to create agency: %w", database.Classify(err))
		}
		agency.CreatedAt = createdAt.Time

		return upsertMembership(ctx, tx, owner)
	})
	if err != nil {
		return err
	}

	r.publishMembership(ctx, changefeed.OpInsert, owner)
	return nil
}

func (r *sqliteAgencyRepo) GetByID(ctx context.Context, agencyID string) (*models.Agency, error) {
	query := `
		SELECT id, name, owner_id, default_mic_policy, theme_color, theme_json, created_at
		FROM agencies WHERE id = ?`

	a := &models.Agency{}
	var createdAt sqliteTime
	err := r.db.QueryRowContext(ctx, query, agencyID).Scan(
		&a.ID, &a.Name, &a.OwnerID, &a.DefaultMicPolicy,
		&a.ThemeColor, &a.ThemeJSON, &createdAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency: %w", database.Classify(err))
	}

	a.CreatedAt = createdAt.Time
	return a, nil
}

func (r *sqliteAgencyRepo) GetMembership(ctx context.Context, agencyID, userID string) (*models.Membership, error) {
	query := `
		SELECT agency_id, user_id, role, created_at
		FROM agency_memberships WHERE agency_id = ? AND user_id = ?`

	m := &models.Membership{}
	var createdAt sqliteTime
	err := r.db.QueryRowContext(ctx, query, agencyID, userID).Scan(
		&m.AgencyID, &m.UserID, &m.Role, &createdAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", database.Classify(err))
	}

	m.CreatedAt = createdAt.Time
	return m, nil
}

func (r *sqliteAgencyRepo) SetMembership(ctx context.Context, m *models.Membership) error {
	if err := upsertMembership(ctx, r.db, m); err != nil {
		return err
	}
	r.publishMembership(ctx, changefeed.OpUpdate, m)
	return nil
}

func upsertMembership(ctx context.Context, q database.TxQuerier, m *models.Membership) error {
	query := `
		INSERT INTO agency_memberships (agency_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agency_id, user_id) DO UPDATE SET role = excluded.role
		RETURNING created_at`

	var createdAt sqliteTime
	err := q.QueryRowContext(ctx, query,
		m.AgencyID, m.UserID, m.Role, time.Now().UTC(),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to set membership: %w", database.Classify(err))
	}
	m.CreatedAt = createdAt.Time

	return nil
}

func (r *sqliteAgencyRepo) DeleteMembership(ctx context.Context, agencyID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM agency_memberships WHERE agency_id = ? AND user_id = ?`,
		agencyID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", database.Classify(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}

	r.publishMembership(ctx, changefeed.OpDelete, &models.Membership{AgencyID: agencyID, UserID: userID})
	return nil
}
