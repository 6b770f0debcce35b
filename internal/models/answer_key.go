package models

import "time"

// ExamKeyFile is an uploaded answer key document. It is never modified after it is stored.
type ExamKeyFile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExamID           uint      `gorm:"not null;index" json:"exam_id"`
	Kind             string    `gorm:"size:16;not null" json:"kind"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	StoredPath       string    `gorm:"size:1024;not null" json:"stored_path"`
	ContentType      string    `gorm:"size:128" json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Checksum         string    `gorm:"size:64" json:"checksum"`
	CreatedAt        time.Time `json:"created_at"`
}

// ExamKeyPage is one rendered answer key page. Operators draw question regions on these.
type ExamKeyPage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExamID     uint      `gorm:"not null;index" json:"exam_id"`
	PageNumber int       `gorm:"not null" json:"page_number"`
	ImagePath  string    `gorm:"size:1024;not null" json:"image_path"`
	Width      int       `gorm:"not null" json:"width"`
	Height     int       `gorm:"not null" json:"height"`
	Generation string    `gorm:"size:64;not null" json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}
