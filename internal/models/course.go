package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Default values applied to blank metadata fields.
const (
	DefaultProvider             = ""
	DefaultCourseName           = "Unknown"
	DefaultSummary              = "Unknown"
	DefaultTrack                = ""
	DefaultPlatform             = ""
	DefaultHandsOn              = "Unknown"
	DefaultSkillLevel           = "Unknown"
	DefaultDifficulty           = "Unknown"
	DefaultLength               = "0 Hours"
	DefaultEvidenceOfCompletion = "Unknown"
)

// CourseFields holds the link and the metadata shared by courses and drafts.
type CourseFields struct {
	Provider             string `gorm:"type:varchar(255);not null;default:'';index" json:"provider"`
	Link                 string `gorm:"type:varchar(512);not null;uniqueIndex" json:"link"`
	CourseName           string `gorm:"type:varchar(512);not null;default:'Unknown'" json:"course_name"`
	Summary              string `gorm:"type:text;not null" json:"summary"`
	Track                string `gorm:"type:varchar(255);not null;default:'';index" json:"track"`
	Platform             string `gorm:"type:varchar(255);not null;default:''" json:"platform"`
	HandsOn              string `gorm:"type:varchar(64);not null;default:'Unknown'" json:"hands_on"`
	SkillLevel           string `gorm:"type:varchar(64);not null;default:'Unknown';index" json:"skill_level"`
	Difficulty           string `gorm:"type:varchar(64);not null;default:'Unknown';index" json:"difficulty"`
	Length               string `gorm:"type:varchar(64);not null;default:'0 Hours'" json:"length"`
	EvidenceOfCompletion string `gorm:"type:text;not null" json:"evidence_of_completion"`
}

// DefaultCourseFields returns the field set a new record starts from.
func DefaultCourseFields() CourseFields {
	return CourseFields{
		Provider:             DefaultProvider,
		CourseName:           DefaultCourseName,
		Summary:              DefaultSummary,
		Track:                DefaultTrack,
		Platform:             DefaultPlatform,
		HandsOn:              DefaultHandsOn,
		SkillLevel:           DefaultSkillLevel,
		Difficulty:           DefaultDifficulty,
		Length:               DefaultLength,
		EvidenceOfCompletion: DefaultEvidenceOfCompletion,
	}
}

// Normalize trims every field and replaces blanks with their defaults.
func (f *CourseFields) Normalize() {
	f.Provider = orDefault(f.Provider, DefaultProvider)
	f.Link = strings.TrimSpace(f.Link)
	f.CourseName = orDefault(f.CourseName, DefaultCourseName)
	f.Summary = orDefault(f.Summary, DefaultSummary)
	f.Track = orDefault(f.Track, DefaultTrack)
	f.Platform = orDefault(f.Platform, DefaultPlatform)
	f.HandsOn = orDefault(f.HandsOn, DefaultHandsOn)
	f.SkillLevel = orDefault(f.SkillLevel, DefaultSkillLevel)
	f.Difficulty = orDefault(f.Difficulty, DefaultDifficulty)
	f.Length = orDefault(f.Length, DefaultLength)
	f.EvidenceOfCompletion = orDefault(f.EvidenceOfCompletion, DefaultEvidenceOfCompletion)
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

// Course is a persisted, versioned catalog record.
type Course struct {
	ID      string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Version int    `gorm:"not null;default:1" json:"version"`
	CourseFields
	DateCreated time.Time `gorm:"not null" json:"date_created"`
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
}

func (Course) TableName() string { return "courses" }

// CourseRevision is an append-only snapshot written with every
// successful mutation of a course.
type CourseRevision struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CourseID  string         `gorm:"type:varchar(36);not null;index:idx_course_revisions_course_version,priority:1" json:"course_id"`
	Version   int            `gorm:"not null;index:idx_course_revisions_course_version,priority:2" json:"version"`
	Operation string         `gorm:"type:varchar(16);not null" json:"operation"`
	Snapshot  datatypes.JSON `json:"snapshot"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (CourseRevision) TableName() string { return "course_revisions" }
