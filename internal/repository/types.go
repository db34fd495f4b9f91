package repository

import (
	"database/sql"

	"github.com/disgoorg/snowflake/v2"
)

type Repo struct {
	db *sql.DB
}

// Settings are per-guild overrides. Zero values mean "use the process
// configuration".
type Settings struct {
	GuildID       snowflake.ID
	DefaultVolume *float64
	MusicChannel  string
}
