package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectSettings is the keyed settings record of one project.
type ProjectSettings struct {
	ProjectID          string         `gorm:"primaryKey;size:128" json:"projectId"`
	CanonText          string         `gorm:"type:longtext" json:"canonText"`
	ExecContractText   string         `gorm:"type:longtext" json:"execContractText"`
	FieldRules         datatypes.JSON `json:"fieldRules"`
	PdfExtractionRules string         `gorm:"type:longtext" json:"pdfExtractionRules"`
	ImagePromptRules   string         `gorm:"type:longtext" json:"imagePromptRules"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// TableName keeps the table name used by the settings API.
func (ProjectSettings) TableName() string {
	return "otherly_settings"
}
