package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
)

const participantColumns = `room_id, user_id, mic_status, requested_at, joined_at, left_at,
	vip_level_id, vip_priority, version, updated_at`

// lockStripes bounds the per-participant write locks.
const lockStripes = 64

// sqliteParticipantRepo writes participant rows and publishes each
// committed row on the feed.
//
// The compare-and-set in SQL is the concurrency control. The striped lock
// only spans write+publish, so two writes to the same participant are
// published in the order they committed.
type sqliteParticipantRepo struct {
	db    *sql.DB
	feed  *changefeed.Feed
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

// NewSQLiteParticipantRepo creates the SQLite ParticipantRepository.
func NewSQLiteParticipantRepo(db *sql.DB, feed *changefeed.Feed) ParticipantRepository {
	return &sqliteParticipantRepo{
		db:   db,
		feed: feed,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// lockFor picks the stripe for a participant. Unrelated participants may
// share a stripe; that only serializes their publishes.
func (r *sqliteParticipantRepo) lockFor(roomID, userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	return &r.locks[h.Sum32()%lockStripes]
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(s rowScanner) (*models.Participant, error) {
	p := &models.Participant{}
	var (
		requestedAt, joinedAt, leftAt, updatedAt sqliteTime
		vipLevelID                               sql.NullString
	)
	err := s.Scan(
		&p.RoomID, &p.UserID, &p.MicStatus, &requestedAt, &joinedAt, &leftAt,
		&vipLevelID, &p.VipPriority, &p.Version, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.RequestedAt = requestedAt.ptr()
	p.JoinedAt = joinedAt.Time
	p.LeftAt = leftAt.ptr()
	p.UpdatedAt = updatedAt.Time
	if vipLevelID.Valid {
		p.VipLevelID = &vipLevelID.String
	}
	return p, nil
}

// publish puts the committed row on the feed. Caller holds the stripe lock.
func (r *sqliteParticipantRepo) publish(ctx context.Context, op changefeed.Op, p *models.Participant) {
	row, err := json.Marshal(p)
	if err != nil {
		log.Printf("[participants] failed to encode change for %s/%s: %v", p.RoomID, p.UserID, err)
		return
	}
	r.feed.Publish(ctx, changefeed.Change{
		Table: ParticipantsTable,
		Op:    op,
		Columns: map[string]string{
			"room_id": p.RoomID,
			"user_id": p.UserID,
		},
		Row:         row,
		CommittedAt: p.UpdatedAt,
	})
}

// Join inserts the participant, or revives a row whose left_at is set.
//
// Three outcomes:
//   - no row          → INSERT at version 1, published as an insert
//   - row that left   → reset to none with a fresh VIP snapshot, version+1
//   - row still here  → the conflict update is skipped (WHERE left_at IS
//     NOT NULL), RETURNING yields nothing and the current row is returned
//     with joined=false. Nothing is published.
func (r *sqliteParticipantRepo) Join(ctx context.Context, roomID, userID string, vip *models.VipLevel) (*models.Participant, bool, error) {
	mu := r.lockFor(roomID, userID)
	mu.Lock()
	defer mu.Unlock()

	var (
		vipID       *string
		vipPriority int
	)
	if vip != nil {
		vipID = &vip.ID
		vipPriority = vip.Priority
	}

	now := r.now()
	query := `
		INSERT INTO participants (room_id, user_id, mic_status, joined_at, vip_level_id, vip_priority, version, updated_at)
		VALUES (?, ?, 'none', ?, ?, ?, 1, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			mic_status = 'none',
			requested_at = NULL,
			joined_at = excluded.joined_at,
			left_at = NULL,
			vip_level_id = excluded.vip_level_id,
			vip_priority = excluded.vip_priority,
			version = participants.version + 1,
			updated_at = excluded.updated_at
		WHERE participants.left_at IS NOT NULL
		RETURNING ` + participantColumns

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query,
		roomID, userID, now, vipID, vipPriority, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		// already present
		current, err := r.Get(ctx, roomID, userID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to join room: %w", database.Classify(err))
	}

	op := changefeed.OpUpdate
	if p.Version == 1 {
		op = changefeed.OpInsert
	}
	r.publish(ctx, op, p)

	return p, true, nil
}

func (r *sqliteParticipantRepo) Get(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE room_id = ? AND user_id = ?`

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, roomID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", database.Classify(err))
	}

	return p, nil
}

// speakerCapClause holds a grant to the room's max_speakers inside the
// same UPDATE, so two concurrent grants can not both take the last slot.
const speakerCapClause = `
		AND (
			(SELECT max_speakers FROM rooms WHERE id = participants.room_id) = 0
			OR (SELECT COUNT(*) FROM participants g
				WHERE g.room_id = participants.room_id AND g.mic_status = 'granted' AND g.left_at IS NULL)
				< (SELECT max_speakers FROM rooms WHERE id = participants.room_id)
		)`

// CompareAndSetStatus writes c.To only while the row still matches what
// the caller read.
//
// The UPDATE's WHERE clause carries the whole check:
//  1. mic_status = c.From and version = c.Version (nobody wrote since)
//  2. left_at IS NULL (still in the room)
//  3. for grants, the speaker cap (speakerCapClause)
//
// A row that matched is returned via RETURNING and published while the
// stripe lock is held. No row means the check failed; explainMiss says
// which part.
func (r *sqliteParticipantRepo) CompareAndSetStatus(ctx context.Context, c StatusChange) (*models.Participant, error) {
	mu := r.lockFor(c.RoomID, c.UserID)
	mu.Lock()
	defer mu.Unlock()

	now := r.now()

	// requested_at: stamped on request, kept through grant, cleared on none
	var (
		requestedExpr string
		args          []any
	)
	switch c.To {
	case models.MicStatusRequested:
		requestedExpr = "?"
		args = append(args, c.To, now)
	case models.MicStatusGranted:
		requestedExpr = "requested_at"
		args = append(args, c.To)
	default:
		requestedExpr = "NULL"
		args = append(args, c.To)
	}
	args = append(args, now, c.RoomID, c.UserID, c.From, c.Version)

	query := `
		UPDATE participants
		SET mic_status = ?, requested_at = ` + requestedExpr + `, version = version + 1, updated_at = ?
		WHERE room_id = ? AND user_id = ? AND mic_status = ? AND version = ? AND left_at IS NULL`
	if c.To == models.MicStatusGranted {
		// counted inside the statement: SQLite serializes writers, so the
		// count can not go stale before the row is updated
		query += speakerCapClause
	}
	query += `
		RETURNING ` + participantColumns

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainMiss(ctx, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update mic status: %w", database.Classify(err))
	}

	r.publish(ctx, changefeed.OpUpdate, p)
	return p, nil
}

// explainMiss tells a lost compare-and-set apart from a full room: if the
// row is still exactly as read, only the speaker cap can have stopped it.
func (r *sqliteParticipantRepo) explainMiss(ctx context.Context, c StatusChange) error {
	current, err := r.Get(ctx, c.RoomID, c.UserID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return fmt.Errorf("%w: participant %s not in room %s", pkg.ErrStaleState, c.UserID, c.RoomID)
		}
		return err
	}

	if c.To == models.MicStatusGranted && current.Present() &&
		current.MicStatus == c.From && current.Version == c.Version {
		return fmt.Errorf("%w: room %s", pkg.ErrSlotsFull, c.RoomID)
	}
	return fmt.Errorf("%w: expected %s@%d, found %s@%d",
		pkg.ErrStaleState, c.From, c.Version, current.MicStatus, current.Version)
}

// MarkLeft stamps left_at. The caller releases the mic first: a row that
// is not back at none fails with ErrStaleState. Leaving twice returns the
// departed row without a second write.
func (r *sqliteParticipantRepo) MarkLeft(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	mu := r.lockFor(roomID, userID)
	mu.Lock()
	defer mu.Unlock()

	now := r.now()
	query := `
		UPDATE participants
		SET left_at = ?, version = version + 1, updated_at = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL AND mic_status = 'none'
		RETURNING ` + participantColumns

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, now, now, roomID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := r.Get(ctx, roomID, userID)
		if err != nil {
			return nil, err
		}
		if !current.Present() {
			return current, nil
		}
		return nil, fmt.Errorf("%w: participant holds mic status %s", pkg.ErrStaleState, current.MicStatus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to leave room: %w", database.Classify(err))
	}

	r.publish(ctx, changefeed.OpUpdate, p)
	return p, nil
}

func (r *sqliteParticipantRepo) ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + `
		FROM participants
		WHERE room_id = ? AND left_at IS NULL
		ORDER BY joined_at ASC, user_id ASC`

	return r.list(ctx, query, roomID)
}

// ListByStatus is ordered by the time the row reached its status.
func (r *sqliteParticipantRepo) ListByStatus(ctx context.Context, roomID string, status models.MicStatus) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + `
		FROM participants
		WHERE room_id = ? AND mic_status = ? AND left_at IS NULL
		ORDER BY updated_at ASC, user_id ASC`

	return r.list(ctx, query, roomID, status)
}

func (r *sqliteParticipantRepo) list(ctx context.Context, query string, args ...any) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", database.Classify(err))
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}

	return participants, nil
}

func (r *sqliteParticipantRepo) ListRoomIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id FROM participants WHERE user_id = ? AND left_at IS NULL ORDER BY joined_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms of user: %w", database.Classify(err))
	}
	defer rows.Close()

	var roomIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		roomIDs = append(roomIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room ids: %w", err)
	}

	return roomIDs, nil
}
