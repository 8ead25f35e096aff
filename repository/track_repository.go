package repository

import (
	"context"
	"database/sql"
	"fmt"

	"EchoFM/model"
)

// TrackRepository defines the read-only track lookups this module needs.
// 曲库的写入由存储服务负责，这里只做元数据查询
type TrackRepository interface {
	// FindTrackByID returns the track or (nil, nil) if it does not exist.
	FindTrackByID(ctx context.Context, id string) (*model.Track, error)
	ListTracks(ctx context.Context) ([]*model.Track, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

// FindTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) FindTrackByID(ctx context.Context, id string) (*model.Track, error) {
	query := "SELECT id, title, artist, audio_url, image_url, duration FROM tracks WHERE id = ?"
	row := r.db.QueryRowContext(ctx, query, id)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.AudioURL, &track.ImageURL, &track.Duration)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track row for ID %s: %w", id, err)
	}
	return track, nil
}

// ListTracks retrieves all tracks.
func (r *mysqlTrackRepository) ListTracks(ctx context.Context) ([]*model.Track, error) {
	query := "SELECT id, title, artist, audio_url, image_url, duration FROM tracks ORDER BY title"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track := &model.Track{}
		if err := rows.Scan(&track.ID, &track.Title, &track.Artist, &track.AudioURL, &track.ImageURL, &track.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}
	return tracks, nil
}
