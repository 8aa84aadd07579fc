package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/utils"
	"gorm.io/gorm"
)

// MediaList is the envelope for an entity's attachments.
type MediaList struct {
	EntityType string              `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Media      []models.MediaModel `json:"media"`
	Total      int                 `json:"total"`
}

// MediaFile is a resolved download: either a stream or a redirect target.
type MediaFile struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
	RedirectURL string
}

// FileFetcher downloads files kept on Google Drive.
type FileFetcher interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, *utils.DriveFile, error)
}

type MediaService struct {
	db            *gorm.DB
	publicBaseURL string
	drive         FileFetcher
}

// NewMediaService builds the service; drive may be nil when no credentials are configured.
func NewMediaService(db *gorm.DB, publicBaseURL string, drive FileFetcher) *MediaService {
	return &MediaService{db: db, publicBaseURL: strings.TrimRight(publicBaseURL, "/"), drive: drive}
}

// ForEntity lists the media attached to one record of e, newest first.
func (s *MediaService) ForEntity(ctx context.Context, e *models.EntityDef, entityType, entityID string) (*MediaList, error) {
	media := []models.MediaModel{}
	err := s.db.WithContext(ctx).
		Where("entity_type IN ? AND entity_id = ?", e.MediaTags, entityID).
		Order("created_at DESC").
		Find(&media).Error
	if err != nil {
		return nil, err
	}
	for i := range media {
		media[i].PublicURL = s.PublicURL(&media[i])
	}
	return &MediaList{EntityType: entityType, EntityID: entityID, Media: media, Total: len(media)}, nil
}

// PublicURL prefers the storage path under the public base URL and falls back to file_url.
func (s *MediaService) PublicURL(m *models.MediaModel) string {
	if m.FilePath != nil && *m.FilePath != "" && s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + strings.TrimLeft(*m.FilePath, "/")
	}
	if m.FileURL != nil {
		return *m.FileURL
	}
	return ""
}

// Open resolves a media row for download. Drive-hosted files are streamed,
// anything else is returned as a redirect.
func (s *MediaService) Open(ctx context.Context, id int) (*MediaFile, error) {
	var m models.MediaModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("media %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	url := s.PublicURL(&m)
	if url == "" {
		return nil, fmt.Errorf("media %d has no file: %w", id, ErrNotFound)
	}
	if !utils.IsGoogleDriveURL(url) || s.drive == nil {
		return &MediaFile{RedirectURL: url}, nil
	}

	fileID, err := utils.ExtractFileIDFromURL(url)
	if err != nil {
		return nil, err
	}
	body, info, err := s.drive.Download(ctx, fileID)
	if errors.Is(err, utils.ErrDriveFileNotFound) {
		return nil, fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	name := info.Name
	if m.FileName != nil && *m.FileName != "" {
		name = *m.FileName
	}
	return &MediaFile{Name: name, ContentType: info.MimeType, Body: body}, nil
}
