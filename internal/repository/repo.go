package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// GetSettings returns the guild's overrides, or empty settings when the guild
// has never changed anything.
func (r *Repo) GetSettings(ctx context.Context, guild snowflake.ID) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT default_volume, music_channel
	FROM settings WHERE guild_id = ?`, guild.String())

	s := Settings{GuildID: guild}
	var vol sql.NullFloat64
	var ch sql.NullString
	if err := row.Scan(&vol, &ch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &s, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if vol.Valid {
		v := vol.Float64
		s.DefaultVolume = &v
	}
	s.MusicChannel = ch.String
	return &s, nil
}

// SetDefaultVolume stores the gain new players in the guild start at. A nil
// volume clears the override.
func (r *Repo) SetDefaultVolume(ctx context.Context, guild snowflake.ID, vol *float64) error {
	var v sql.NullFloat64
	if vol != nil {
		v = sql.NullFloat64{Float64: *vol, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings(guild_id, default_volume) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  default_volume = excluded.default_volume,
		  updated_at = CURRENT_TIMESTAMP`,
		guild.String(), v,
	)
	if err != nil {
		return fmt.Errorf("set default volume: %w", err)
	}
	return nil
}

// SetMusicChannel overrides the trigger channel name. Empty clears it.
func (r *Repo) SetMusicChannel(ctx context.Context, guild snowflake.ID, name string) error {
	var v sql.NullString
	if name != "" {
		v = sql.NullString{String: name, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings(guild_id, music_channel) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  music_channel = excluded.music_channel,
		  updated_at = CURRENT_TIMESTAMP`,
		guild.String(), v,
	)
	if err != nil {
		return fmt.Errorf("set music channel: %w", err)
	}
	return nil
}
