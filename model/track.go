package model

// Track represents an audio track in the music library.
// The catalog itself (upload, transcoding, CRUD) is owned by the storage
// service; this module only reads track metadata by ID.
type Track struct {
	ID       string  `json:"id" gorm:"primaryKey;column:id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	AudioURL string  `json:"audioUrl" gorm:"column:audio_url"`
	ImageURL string  `json:"imageUrl" gorm:"column:image_url"`
	Duration float64 `json:"duration"` // Duration in seconds
}
