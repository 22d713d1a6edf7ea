package storage

import (
	"time"
)

// Repo represents one watched repository's durable counters
type Repo struct {
	ID              uint   `gorm:"primaryKey"`
	Path            string `gorm:"uniqueIndex;not null"`
	LastCommitHash  string `gorm:"not null;default:''"`
	LastBranch      string `gorm:"not null;default:''"`
	CumulativeDelta int64  `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FileComplexity is the last computed complexity for one file in one repo.
// A row's existence means its value has been folded into the repo's
// cumulative delta exactly once.
type FileComplexity struct {
	ID             uint   `gorm:"primaryKey"`
	RepoID         uint   `gorm:"not null;uniqueIndex:idx_repo_file"`
	FilePath       string `gorm:"not null;uniqueIndex:idx_repo_file"`
	Complexity     int64  `gorm:"not null;default:0"`
	LastCalculated time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
