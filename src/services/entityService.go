package services

import (
	"context"
	"fmt"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/models"
	"gorm.io/gorm"
)

// Page is the paginated list envelope.
type Page struct {
	Data       []*Row `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
}

// DescriptionUpdate carries the editable text fields of an entity record.
type DescriptionUpdate struct {
	Description   *string `json:"description" form:"description"`
	DescriptionTR *string `json:"description_tr" form:"description_tr"`
}

type EntityService struct {
	db     *gorm.DB
	schema config.SchemaConfig
}

func NewEntityService(db *gorm.DB, schema config.SchemaConfig) *EntityService {
	return &EntityService{db: db, schema: schema}
}

// List returns one page of e matching p, with has_media resolved per row.
func (s *EntityService) List(ctx context.Context, e *models.EntityDef, p ListParams) (*Page, error) {
	qb := newQueryBuilder(e, s.schema)
	db := s.db.WithContext(ctx)

	var total int64
	count := qb.Count(p)
	if err := db.Raw(count.SQL, count.Args...).Scan(&total).Error; err != nil {
		return nil, err
	}

	page := qb.Page(p)
	rows, err := db.Raw(page.SQL, page.Args...).Rows()
	if err != nil {
		return nil, err
	}
	data, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	if err := s.markMedia(ctx, e, data); err != nil {
		return nil, err
	}

	return &Page{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: TotalPages(total, p.PerPage),
	}, nil
}

// Get returns a single record with its geometry.
func (s *EntityService) Get(ctx context.Context, e *models.EntityDef, id string) (*Row, error) {
	return s.get(ctx, e, id, true)
}

// GetPlain returns a single record without geometry.
func (s *EntityService) GetPlain(ctx context.Context, e *models.EntityDef, id string) (*Row, error) {
	return s.get(ctx, e, id, false)
}

func (s *EntityService) get(ctx context.Context, e *models.EntityDef, id string, withGeometry bool) (*Row, error) {
	q := newQueryBuilder(e, s.schema).ByID(id, withGeometry)
	rows, err := s.db.WithContext(ctx).Raw(q.SQL, q.Args...).Rows()
	if err != nil {
		return nil, err
	}
	data, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s %s: %w", e.Name, id, ErrNotFound)
	}
	if withGeometry {
		if err := s.markMedia(ctx, e, data); err != nil {
			return nil, err
		}
	}
	return data[0], nil
}

// All returns every record matching p without geometry or paging.
func (s *EntityService) All(ctx context.Context, e *models.EntityDef, p ListParams) ([]*Row, error) {
	q := newQueryBuilder(e, s.schema).All(p)
	rows, err := s.db.WithContext(ctx).Raw(q.SQL, q.Args...).Rows()
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// UpdateDescription edits the description fields of one record.
func (s *EntityService) UpdateDescription(ctx context.Context, e *models.EntityDef, id string, in DescriptionUpdate) (*Row, error) {
	updates := map[string]any{}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.DescriptionTR != nil {
		updates["description_tr"] = *in.DescriptionTR
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: description or description_tr is required", ErrInvalidParam)
	}

	// Legacy tables do not enforce unique public ids; an update must hit exactly one row.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Table(e.Table).Where(e.IDField+"::text = ?", id).Updates(updates)
		switch {
		case result.Error != nil:
			return result.Error
		case result.RowsAffected == 0:
			return fmt.Errorf("%s %s: %w", e.Name, id, ErrNotFound)
		case result.RowsAffected > 1:
			return fmt.Errorf("%s %s matches %d records: %w", e.Name, id, result.RowsAffected, ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, e, id)
}

// markMedia sets has_media on every row with one lookup for the whole page.
func (s *EntityService) markMedia(ctx context.Context, e *models.EntityDef, rows []*Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id := r.String(e.IDField); id != "" {
			ids = append(ids, id)
		}
	}

	found := map[string]bool{}
	if len(ids) > 0 {
		var owners []string
		err := s.db.WithContext(ctx).
			Model(&models.MediaModel{}).
			Distinct("entity_id").
			Where("entity_type IN ? AND entity_id IN ?", e.MediaTags, ids).
			Pluck("entity_id", &owners).Error
		if err != nil {
			return err
		}
		for _, o := range owners {
			found[o] = true
		}
	}

	for _, r := range rows {
		r.Set("has_media", found[r.String(e.IDField)])
	}
	return nil
}
