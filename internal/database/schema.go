package database

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending          string = "pending"
	StatusGeneratingData   string = "generating-data"
	StatusDataGenerated    string = "data-generated"
	StatusGeneratingImages string = "generating-images"
	StatusCompleted        string = "completed"
	StatusFailed           string = "failed"
)

// IsTerminalStatus reports whether a task in this status will receive no
// further processing.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

type GenerationTask struct {
	ID uint `gorm:"primaryKey"`

	// External token handed to clients; never exposes the numeric key.
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
	Images       datatypes.JSON `gorm:"type:jsonb"` // ["https://…/image_0.png",…]

	CreatedAt time.Time
}

// Setting rows hold operator-editable text values, e.g. the per-platform
// bio style instructions (bio_prompt_facebook, bio_prompt_instagram, …).
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BoolConfig rows gate pipeline behavior: randomize_face_base,
// randomize_face_gender_lock, randomize_image_style, crop_white_borders.
type BoolConfig struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BoolConfig) TableName() string { return "config" }

// IntConfig rows hold numeric tunables: max_concurrent_tasks.
type IntConfig struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:255;uniqueIndex;not null"`
	Value     int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (IntConfig) TableName() string { return "int_config" }
