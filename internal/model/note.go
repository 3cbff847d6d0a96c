// Package model defines database models
package model

import (
	"time"

	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

type Note struct {
	ID          string `gorm:"primaryKey;size:32" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"not null" json:"description"`
	Subject     string `gorm:"not null;index" json:"subject"`

	FileName string `gorm:"not null" json:"fileName"` // Original name as sent by the uploader
	FileType string `gorm:"not null" json:"fileType"`
	// Object store key, never changes after the note is created
	BlobName string `gorm:"uniqueIndex;not null" json:"blobName"`
	BlobURL  string `gorm:"not null" json:"blobUrl"`
	FileSize int64  `gorm:"not null" json:"fileSize"`

	UploadedBy string `gorm:"index;not null" json:"uploadedBy"`
	Owner      *Owner `gorm:"-" json:"owner,omitempty"`

	// Case folded copies used by the listing filters
	SubjectFold     string `gorm:"not null;default:''" json:"-"`
	TitleFold       string `gorm:"not null;default:''" json:"-"`
	DescriptionFold string `gorm:"not null;default:''" json:"-"`

	Downloads  int64     `gorm:"not null;default:0" json:"downloads"`
	IsApproved bool      `gorm:"not null" json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (n *Note) BeforeSave(_ *gorm.DB) error {
	n.SubjectFold = Fold(n.Subject)
	n.TitleFold = Fold(n.Title)
	n.DescriptionFold = Fold(n.Description)
	return nil
}

// Fold applies Unicode case folding. The database only folds ASCII, so both
// stored values and filter input go through here.
func Fold(s string) string {
	return cases.Fold().String(s)
}

type Stats struct {
	TotalUsers     int64 `json:"totalUsers"`
	TotalNotes     int64 `json:"totalNotes"`
	ApprovedNotes  int64 `json:"approvedNotes"`
	TotalDownloads int64 `json:"totalDownloads"`
}
