package seed

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	AdminRole     = "admin"
	EditorRole    = "editor"
	ViewerRole    = "viewer"
	AdminUsername = "admin"
)

// DefaultRoles are created when missing. Existing rows are left untouched.
var DefaultRoles = []models.RoleModel{
	{
		RoleName: AdminRole, RoleLevel: 100, Description: "Full access including user management",
		CanView: true, CanCreate: true, CanEdit: true, CanDelete: true,
		CanManageUsers: true, CanExport: true, CanGenerateReports: true,
	},
	{
		RoleName: EditorRole, RoleLevel: 50, Description: "Edit records and export data",
		CanView: true, CanCreate: true, CanEdit: true, CanExport: true, CanGenerateReports: true,
	},
	{
		RoleName: ViewerRole, RoleLevel: 10, Description: "Read-only access",
		CanView: true,
	},
}

// Migrate creates the tables this service owns. Survey tables are external.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RoleModel{},
		&models.UserModel{},
		&models.InvitationTokenModel{},
		&models.ActivityLogModel{},
	)
}

// Seed ensures the default roles and, on an empty user table, an initial admin.
func Seed(ctx context.Context, db *gorm.DB, adminPassword string) error {
	if err := Roles(ctx, db); err != nil {
		return err
	}
	_, err := InitialAdmin(ctx, db, adminPassword)
	return err
}

func Roles(ctx context.Context, db *gorm.DB) error {
	for _, r := range DefaultRoles {
		var role models.RoleModel
		err := db.WithContext(ctx).Where("role_name = ?", r.RoleName).Attrs(r).FirstOrCreate(&role).Error
		if err != nil {
			return fmt.Errorf("seed role %s: %w", r.RoleName, err)
		}
	}
	return nil
}

// InitialAdmin creates the admin account when no user exists yet. Without a
// configured password one is generated and logged once.
func InitialAdmin(ctx context.Context, db *gorm.DB, password string) (bool, error) {
	db = db.WithContext(ctx)

	var users int64
	if err := db.Model(&models.UserModel{}).Count(&users).Error; err != nil {
		return false, err
	}
	if users > 0 {
		return false, nil
	}

	var role models.RoleModel
	if err := db.Where("role_name = ?", AdminRole).First(&role).Error; err != nil {
		return false, fmt.Errorf("admin role: %w", err)
	}

	generated := password == ""
	if generated {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return false, err
		}
		password = base64.RawURLEncoding.EncodeToString(buf)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	admin := models.UserModel{
		Username:     AdminUsername,
		Email:        "admin@localhost",
		FullName:     "System Administrator",
		PasswordHash: string(hash),
		RoleID:       role.RoleID,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}

	ev := logging.Warn().Str("username", AdminUsername)
	if generated {
		ev = ev.Str("password", password)
	}
	ev.Msg("initial admin user created, change the password after first login")
	return true, nil
}
