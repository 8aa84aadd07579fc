package models

import "time"

// MediaModel is an attachment owned by an entity through a type tag and id.
type MediaModel struct {
	ID          int       `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	EntityType  string    `json:"entity_type" gorm:"column:entity_type;type:varchar(50);not null;index:idx_media_entity"`
	EntityID    string    `json:"entity_id" gorm:"column:entity_id;type:varchar(100);not null;index:idx_media_entity"`
	FileName    *string   `json:"file_name" gorm:"column:file_name"`
	FilePath    *string   `json:"file_path" gorm:"column:file_path"`
	FileURL     *string   `json:"file_url" gorm:"column:file_url"`
	FileType    *string   `json:"file_type" gorm:"column:file_type"`
	Description *string   `json:"description" gorm:"column:description;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	PublicURL   string    `json:"public_url,omitempty" gorm:"-"`
}

func (MediaModel) TableName() string {
	return "media"
}
