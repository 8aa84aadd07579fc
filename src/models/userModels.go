package models

import (
	"time"

	"gorm.io/datatypes"
)

// Permission is a capability granted by a role.
type Permission string

const (
	PermView            Permission = "view"
	PermCreate          Permission = "create"
	PermEdit            Permission = "edit"
	PermDelete          Permission = "delete"
	PermManageUsers     Permission = "manage_users"
	PermExport          Permission = "export"
	PermGenerateReports Permission = "generate_reports"
)

type RoleModel struct {
	RoleID             int    `json:"roleId" gorm:"column:role_id;primaryKey;autoIncrement"`
	RoleName           string `json:"roleName" gorm:"column:role_name;type:varchar(50);not null;uniqueIndex"`
	RoleLevel          int    `json:"roleLevel" gorm:"column:role_level;not null;default:0"`
	Description        string `json:"description" gorm:"column:description;type:text"`
	CanView            bool   `json:"canView" gorm:"column:can_view;not null;default:true"`
	CanCreate          bool   `json:"canCreate" gorm:"column:can_create;not null;default:false"`
	CanEdit            bool   `json:"canEdit" gorm:"column:can_edit;not null;default:false"`
	CanDelete          bool   `json:"canDelete" gorm:"column:can_delete;not null;default:false"`
	CanManageUsers     bool   `json:"canManageUsers" gorm:"column:can_manage_users;not null;default:false"`
	CanExport          bool   `json:"canExport" gorm:"column:can_export;not null;default:false"`
	CanGenerateReports bool   `json:"canGenerateReports" gorm:"column:can_generate_reports;not null;default:false"`
}

func (RoleModel) TableName() string {
	return "user_roles"
}

// Can reports whether the role grants p. Unknown permissions are denied.
func (r RoleModel) Can(p Permission) bool {
	switch p {
	case PermView:
		return r.CanView
	case PermCreate:
		return r.CanCreate
	case PermEdit:
		return r.CanEdit
	case PermDelete:
		return r.CanDelete
	case PermManageUsers:
		return r.CanManageUsers
	case PermExport:
		return r.CanExport
	case PermGenerateReports:
		return r.CanGenerateReports
	}
	return false
}

type UserModel struct {
	UserID       int        `json:"userId" gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string     `json:"username" gorm:"column:username;type:varchar(100);not null;uniqueIndex"`
	Email        string     `json:"email" gorm:"column:email;type:varchar(255)"`
	FullName     string     `json:"fullName" gorm:"column:full_name;type:varchar(255)"`
	PasswordHash string     `json:"-" gorm:"column:password_hash;type:varchar(100);not null"`
	RoleID       int        `json:"roleId" gorm:"column:role_id;not null"`
	Role         RoleModel  `json:"role" gorm:"foreignKey:RoleID;references:RoleID"`
	Organization *string    `json:"organization" gorm:"column:organization;type:varchar(255)"`
	IsActive     bool       `json:"isActive" gorm:"column:is_active;not null;default:true"`
	LastLogin    *time.Time `json:"lastLogin" gorm:"column:last_login"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"column:created_at"`
}

func (UserModel) TableName() string {
	return "system_users"
}

// Can delegates to the user's role.
func (u *UserModel) Can(p Permission) bool {
	return u != nil && u.IsActive && u.Role.Can(p)
}

type InvitationTokenModel struct {
	TokenID      int        `json:"tokenId" gorm:"column:token_id;primaryKey;autoIncrement"`
	Token        string     `json:"token" gorm:"column:token;type:varchar(64);not null;uniqueIndex"`
	RoleID       int        `json:"roleId" gorm:"column:role_id;not null"`
	Role         RoleModel  `json:"role" gorm:"foreignKey:RoleID;references:RoleID"`
	MaxUses      int        `json:"maxUses" gorm:"column:max_uses;not null;default:1"`
	UsedCount    int        `json:"usedCount" gorm:"column:used_count;not null;default:0"`
	ExpiresAt    *time.Time `json:"expiresAt" gorm:"column:expires_at"`
	Organization *string    `json:"organization" gorm:"column:organization;type:varchar(255)"`
	Notes        *string    `json:"notes" gorm:"column:notes;type:text"`
	CreatedBy    int        `json:"createdBy" gorm:"column:created_by;not null"`
	Creator      UserModel  `json:"creator" gorm:"foreignKey:CreatedBy;references:UserID"`
	IsActive     bool       `json:"isActive" gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"column:created_at"`
}

func (InvitationTokenModel) TableName() string {
	return "invitation_tokens"
}

// Usable reports whether the token can still grant a registration at now.
func (t *InvitationTokenModel) Usable(now time.Time) bool {
	if !t.IsActive || t.UsedCount >= t.MaxUses {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

type ActivityLogModel struct {
	LogID       int            `json:"logId" gorm:"column:log_id;primaryKey;autoIncrement"`
	UserID      int            `json:"userId" gorm:"column:user_id;not null;index"`
	User        UserModel      `json:"user" gorm:"foreignKey:UserID;references:UserID"`
	Action      string         `json:"action" gorm:"column:action;type:varchar(50);not null"`
	TargetTable *string        `json:"tableName" gorm:"column:table_name;type:varchar(100)"`
	RecordID    *string        `json:"recordId" gorm:"column:record_id;type:varchar(100)"`
	Details     datatypes.JSON `json:"details" gorm:"column:details"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"column:created_at;index"`
}

func (ActivityLogModel) TableName() string {
	return "user_activity_log"
}

type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}
