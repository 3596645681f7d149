package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the initial schema. Later migrations must not reference the
// live models in the database package, so the structs are repeated here.

type GenerationTask struct {
	ID uint `gorm:"primaryKey"`

	TaskID string `gorm:"size:12;uniqueIndex;not null"`
	UserID int    `gorm:"not null"`

	PersonaDescription string `gorm:"type:text;not null"`
	BioLanguage        string `gorm:"size:100;not null"`
	NumberToGenerate   int    `gorm:"not null"`
	ImagesPerPersona   int    `gorm:"not null"`

	Status   string `gorm:"size:50;not null;default:pending;index"`
	ErrorLog string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt sql.NullTime

	Results []GenerationResult `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

type GenerationResult struct {
	ID          uint `gorm:"primaryKey"`
	TaskID      uint `gorm:"not null;index"`
	BatchNumber int  `gorm:"not null"`

	Firstname string `gorm:"size:100;not null"`
	Lastname  string `gorm:"size:100;not null"`
	Gender    string `gorm:"size:10;not null"`

	BioFacebook  string `gorm:"type:text"`
	BioInstagram string `gorm:"type:text"`
	BioX         string `gorm:"type:text"`
	BioTiktok    string `gorm:"type:text"`

	JobTitle         string `gorm:"type:text"`
	Workplace        string `gorm:"type:text"`
	EduEstablishment string `gorm:"type:text"`
	EduStudy         string `gorm:"type:text"`
	CurrentCity      string `gorm:"size:255"`
	CurrentState     string `gorm:"size:255"`
	PrevCity         string `gorm:"size:255"`
	PrevState        string `gorm:"size:255"`
	About            string `gorm:"type:text"`
	Ethnicity        string `gorm:"size:100"`
	Age              sql.NullInt64

	BaseImageURL string         `gorm:"type:text"`
	Images       datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time
}

type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BoolConfig struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BoolConfig) TableName() string { return "config" }

type IntConfig struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (IntConfig) TableName() string { return "int_config" }

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&GenerationTask{}, &GenerationResult{}, &Setting{}, &BoolConfig{}, &IntConfig{},
	); err != nil {
		return fmt.Errorf("error creating initial schema: %w", err)
	}
	return nil
}
