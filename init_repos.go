// Package main: repository layer setup.
package main

import (
	"database/sql"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

// Repositories holds every repository instance.
type Repositories struct {
	Room        repository.RoomRepository
	Agency      repository.AgencyRepository
	Vip         repository.VipRepository
	Participant repository.ParticipantRepository
	RoomBan     repository.RoomBanRepository
}

// initRepositories creates the repositories on one connection pool.
// Participant and membership writes are published on feed.
func initRepositories(conn *sql.DB, feed *changefeed.Feed) *Repositories {
	return &Repositories{
		Room:        repository.NewSQLiteRoomRepo(conn),
		Agency:      repository.NewSQLiteAgencyRepo(conn, feed),
		Vip:         repository.NewSQLiteVipRepo(conn),
		Participant: repository.NewSQLiteParticipantRepo(conn, feed),
		RoomBan:     repository.NewSQLiteRoomBanRepo(conn),
	}
}
