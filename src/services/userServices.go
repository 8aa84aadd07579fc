package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActivityPageSize    = 50
	recentActivityLimit = 10
)

// NewUser is the input for creating an account.
type NewUser struct {
	Username     string `form:"username" validate:"required,min=3,max=100"`
	Password     string `form:"password" validate:"required,min=6,max=72"`
	Email        string `form:"email" validate:"omitempty,email"`
	FullName     string `form:"full_name" validate:"max=255"`
	RoleID       int    `form:"role_id" validate:"required,min=1"`
	Organization string `form:"organization" validate:"max=255"`
}

// UserUpdate is the admin edit form for an account.
type UserUpdate struct {
	FullName     string `form:"full_name" validate:"max=255"`
	Email        string `form:"email" validate:"omitempty,email"`
	RoleID       int    `form:"role_id" validate:"required,min=1"`
	Organization string `form:"organization" validate:"max=255"`
	IsActive     bool   `form:"is_active"`
}

// TokenRequest describes a new invitation token. DaysValid 0 means no expiry.
type TokenRequest struct {
	RoleID       int    `form:"role_id" validate:"required,min=1"`
	MaxUses      int    `form:"max_uses,default=1" validate:"min=1,max=1000"`
	DaysValid    int    `form:"days_valid,default=30" validate:"min=0,max=3650"`
	Organization string `form:"organization" validate:"max=255"`
	Notes        string `form:"notes"`
}

// RegisterRequest is a self-registration through an invitation token.
type RegisterRequest struct {
	Token    string `form:"token" validate:"required"`
	Username string `form:"username" validate:"required,min=3,max=100"`
	Password string `form:"password" validate:"required,min=6,max=72"`
	Email    string `form:"email" validate:"omitempty,email"`
	FullName string `form:"full_name" validate:"max=255"`
}

type RoleWithCount struct {
	models.RoleModel
	UserCount int64 `json:"userCount"`
}

type RoleCount struct {
	RoleName string `json:"roleName"`
	Count    int64  `json:"count"`
}

type DashboardStats struct {
	ActiveUsers    int64                     `json:"activeUsers"`
	ActiveTokens   int64                     `json:"activeTokens"`
	UsersByRole    []RoleCount               `json:"usersByRole"`
	RecentActivity []models.ActivityLogModel `json:"recentActivity"`
}

type ActivityPage struct {
	Items      []models.ActivityLogModel `json:"items"`
	Total      int64                     `json:"total"`
	Page       int                       `json:"page"`
	TotalPages int                       `json:"totalPages"`
}

// DayCount is a per-day bucket; Day is YYYY-MM-DD.
type DayCount struct {
	Day   string `json:"date"`
	Count int    `json:"count"`
}

type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService creates a new instance of UserService
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, now: time.Now}
}

// Authenticate checks credentials of an active user. On success last_login
// is updated and a login entry is appended in the same transaction.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.UserModel, error) {
	var user models.UserModel
	err := s.db.WithContext(ctx).Preload("Role").
		Where("username = ? AND is_active = ?", strings.TrimSpace(username), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.UserModel{}).Where("user_id = ?", user.UserID).
			Update("last_login", now).Error; err != nil {
			return err
		}
		return tx.Create(newActivity(user.UserID, "login", "", "", nil, now)).Error
	})
	if err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return &user, nil
}

// ActiveUser loads an active user with its role.
func (s *UserService) ActiveUser(ctx context.Context, id int) (*models.UserModel, error) {
	var user models.UserModel
	err := s.db.WithContext(ctx).Preload("Role").
		Where("user_id = ? AND is_active = ?", id, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// LogActivity appends an entry to the activity log.
func (s *UserService) LogActivity(ctx context.Context, userID int, action, table, recordID string, details map[string]any) error {
	return s.db.WithContext(ctx).Create(newActivity(userID, action, table, recordID, details, s.now())).Error
}

func newActivity(userID int, action, table, recordID string, details map[string]any, at time.Time) *models.ActivityLogModel {
	entry := &models.ActivityLogModel{UserID: userID, Action: action, CreatedAt: at}
	if table != "" {
		entry.TargetTable = &table
	}
	if recordID != "" {
		entry.RecordID = &recordID
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(b)
		}
	}
	return entry
}

// CreateUser hashes the password and stores a new active account.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (*models.UserModel, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return s.createUser(s.db.WithContext(ctx), in)
}

func (s *UserService) createUser(tx *gorm.DB, in NewUser) (*models.UserModel, error) {
	username := strings.TrimSpace(in.Username)

	var taken int64
	if err := tx.Model(&models.UserModel{}).Where("username = ?", username).Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, fmt.Errorf("%w: username %q is already taken", ErrInvalidParam, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.UserModel{
		Username:     username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: string(hash),
		RoleID:       in.RoleID,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if in.Organization != "" {
		org := in.Organization
		user.Organization = &org
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// SetPassword replaces the password of a user.
func (s *UserService) SetPassword(ctx context.Context, id int, password string) error {
	if len(password) < 6 || len(password) > 72 {
		return fmt.Errorf("%w: password must be 6 to 72 bytes", ErrInvalidParam)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.UserModel{}).Where("user_id = ?", id).
		Update("password_hash", string(hash))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.UserModel, error) {
	var user models.UserModel
	err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]models.UserModel, error) {
	var users []models.UserModel
	err := s.db.WithContext(ctx).Preload("Role").Order("created_at DESC").Find(&users).Error
	return users, err
}

func (s *UserService) GetUser(ctx context.Context, id int) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.WithContext(ctx).Preload("Role").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser applies the admin edit form and logs it under actorID.
func (s *UserService) UpdateUser(ctx context.Context, actorID, id int, in UserUpdate) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if err := s.roleExists(ctx, in.RoleID); err != nil {
		return err
	}

	var org *string
	if in.Organization != "" {
		org = &in.Organization
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserModel{}).Where("user_id = ?", id).Updates(map[string]any{
			"full_name":    in.FullName,
			"email":        in.Email,
			"role_id":      in.RoleID,
			"organization": org,
			"is_active":    in.IsActive,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return tx.Create(newActivity(actorID, "edit_user", models.UserModel{}.TableName(),
			fmt.Sprint(id), map[string]any{"role_id": in.RoleID, "is_active": in.IsActive}, s.now())).Error
	})
}

func (s *UserService) roleExists(ctx context.Context, roleID int) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.RoleModel{}).Where("role_id = ?", roleID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: unknown role %d", ErrInvalidParam, roleID)
	}
	return nil
}

func (s *UserService) GetRoles(ctx context.Context) ([]models.RoleModel, error) {
	var roles []models.RoleModel
	err := s.db.WithContext(ctx).Order("role_level DESC").Find(&roles).Error
	return roles, err
}

func (s *UserService) RoleByName(ctx context.Context, name string) (*models.RoleModel, error) {
	var role models.RoleModel
	if err := s.db.WithContext(ctx).Where("role_name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("role %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &role, nil
}

// RolesWithCounts lists roles with the number of users holding each.
func (s *UserService) RolesWithCounts(ctx context.Context) ([]RoleWithCount, error) {
	roles, err := s.GetRoles(ctx)
	if err != nil {
		return nil, err
	}
	var counts []struct {
		RoleID int
		N      int64
	}
	err = s.db.WithContext(ctx).Model(&models.UserModel{}).
		Select("role_id, COUNT(*) AS n").Group("role_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byRole := map[int]int64{}
	for _, c := range counts {
		byRole[c.RoleID] = c.N
	}

	out := make([]RoleWithCount, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleWithCount{RoleModel: r, UserCount: byRole[r.RoleID]})
	}
	return out, nil
}

func (s *UserService) GetTokens(ctx context.Context) ([]models.InvitationTokenModel, error) {
	var tokens []models.InvitationTokenModel
	err := s.db.WithContext(ctx).Preload("Role").Preload("Creator").Order("created_at DESC").Find(&tokens).Error
	return tokens, err
}

// CreateToken issues a random invitation token for a role.
func (s *UserService) CreateToken(ctx context.Context, actorID int, in TokenRequest) (*models.InvitationTokenModel, error) {
	if in.MaxUses == 0 {
		in.MaxUses = 1
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if err := s.roleExists(ctx, in.RoleID); err != nil {
		return nil, err
	}

	value, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	token := &models.InvitationTokenModel{
		Token:     value,
		RoleID:    in.RoleID,
		MaxUses:   in.MaxUses,
		CreatedBy: actorID,
		IsActive:  true,
		CreatedAt: now,
	}
	if in.DaysValid > 0 {
		exp := now.AddDate(0, 0, in.DaysValid)
		token.ExpiresAt = &exp
	}
	if in.Organization != "" {
		token.Organization = &in.Organization
	}
	if in.Notes != "" {
		token.Notes = &in.Notes
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(token).Error; err != nil {
			return err
		}
		return tx.Create(newActivity(actorID, "create_token", token.TableName(),
			fmt.Sprint(token.TokenID), map[string]any{"role_id": in.RoleID, "max_uses": in.MaxUses}, now)).Error
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// RevokeToken deactivates a token.
func (s *UserService) RevokeToken(ctx context.Context, actorID, tokenID int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InvitationTokenModel{}).Where("token_id = ?", tokenID).Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("token %d: %w", tokenID, ErrNotFound)
		}
		return tx.Create(newActivity(actorID, "revoke_token", models.InvitationTokenModel{}.TableName(),
			fmt.Sprint(tokenID), nil, s.now())).Error
	})
}

// Register creates an account from an invitation token. The token use is
// claimed with a conditional update so concurrent registrations cannot exceed max_uses.
func (s *UserService) Register(ctx context.Context, in RegisterRequest) (*models.UserModel, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	var user *models.UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.InvitationTokenModel
		if err := tx.Where("token = ?", strings.TrimSpace(in.Token)).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		now := s.now()
		if !token.Usable(now) {
			return ErrInvalidToken
		}

		claim := tx.Model(&models.InvitationTokenModel{}).
			Where("token_id = ? AND is_active = ? AND used_count < max_uses", token.TokenID, true).
			Update("used_count", gorm.Expr("used_count + 1"))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrInvalidToken
		}
		if token.UsedCount+1 >= token.MaxUses {
			if err := tx.Model(&models.InvitationTokenModel{}).Where("token_id = ?", token.TokenID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}

		var org string
		if token.Organization != nil {
			org = *token.Organization
		}
		created, err := s.createUser(tx, NewUser{
			Username:     in.Username,
			Password:     in.Password,
			Email:        in.Email,
			FullName:     in.FullName,
			RoleID:       token.RoleID,
			Organization: org,
		})
		if err != nil {
			return err
		}
		user = created
		return tx.Create(newActivity(created.UserID, "register", created.TableName(),
			fmt.Sprint(created.UserID), map[string]any{"token_id": token.TokenID}, now)).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetActivity returns one page of the activity log, newest first.
func (s *UserService) GetActivity(ctx context.Context, page int) (*ActivityPage, error) {
	if page < 1 {
		page = 1
	}
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.ActivityLogModel{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.ActivityLogModel
	err := db.Preload("User").Order("created_at DESC, log_id DESC").
		Limit(ActivityPageSize).Offset((page - 1) * ActivityPageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &ActivityPage{Items: items, Total: total, Page: page, TotalPages: TotalPages(total, ActivityPageSize)}, nil
}

// Dashboard gathers the counters shown on the admin home page.
func (s *UserService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{}

	if err := db.Model(&models.UserModel{}).Where("is_active = ?", true).Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}
	err := db.Model(&models.InvitationTokenModel{}).
		Where("is_active = ? AND used_count < max_uses AND (expires_at IS NULL OR expires_at > ?)", true, s.now()).
		Count(&stats.ActiveTokens).Error
	if err != nil {
		return nil, err
	}
	err = db.Table("system_users AS u").
		Select("r.role_name AS role_name, COUNT(*) AS count").
		Joins("JOIN user_roles AS r ON r.role_id = u.role_id").
		Where("u.is_active = ?", true).
		Group("r.role_name").
		Order("count DESC").
		Scan(&stats.UsersByRole).Error
	if err != nil {
		return nil, err
	}
	err = db.Preload("User").Order("created_at DESC, log_id DESC").Limit(recentActivityLimit).
		Find(&stats.RecentActivity).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// UsageStats returns new users per day over 30 days and activity per day over 7 days.
func (s *UserService) UsageStats(ctx context.Context) (map[string][]DayCount, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	var signups []time.Time
	err := db.Model(&models.UserModel{}).Where("created_at >= ?", now.AddDate(0, 0, -30)).
		Pluck("created_at", &signups).Error
	if err != nil {
		return nil, err
	}
	var actions []time.Time
	err = db.Model(&models.ActivityLogModel{}).Where("created_at >= ?", now.AddDate(0, 0, -7)).
		Pluck("created_at", &actions).Error
	if err != nil {
		return nil, err
	}
	return map[string][]DayCount{
		"user_registrations": countByDay(signups),
		"daily_activity":     countByDay(actions),
	}, nil
}

func countByDay(ts []time.Time) []DayCount {
	byDay := map[string]int{}
	for _, t := range ts {
		byDay[t.Format("2006-01-02")]++
	}
	out := make([]DayCount, 0, len(byDay))
	for d, n := range byDay {
		out = append(out, DayCount{Day: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
