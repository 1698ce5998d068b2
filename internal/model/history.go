package model

import (
	"time"

	"gorm.io/gorm"
)

type History struct {
	gorm.Model
	JobID      string   `gorm:"not null;index"`
	SourceRef  string   `gorm:"not null"`
	Kind       JobKind  `gorm:"not null"`
	State      JobState `gorm:"not null"`
	Size       int64
	DurationMs int64
	ErrMsg     string
	FinishedAt time.Time `gorm:"not null"`
}
