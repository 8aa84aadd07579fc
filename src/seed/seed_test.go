package seed

import (
	"context"
	"testing"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, db, "s3cret-pass"))
	require.NoError(t, Seed(ctx, db, "other-pass"))

	var roles int64
	require.NoError(t, db.Model(&models.RoleModel{}).Count(&roles).Error)
	assert.Equal(t, int64(len(DefaultRoles)), roles)

	var admins []models.UserModel
	require.NoError(t, db.Preload("Role").Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, AdminUsername, admins[0].Username)
	assert.True(t, admins[0].Can(models.PermManageUsers))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].PasswordHash), []byte("s3cret-pass")))
}

func TestViewerRoleIsReadOnly(t *testing.T) {
	db := openDB(t)
	require.NoError(t, Roles(context.Background(), db))

	var viewer models.RoleModel
	require.NoError(t, db.Where("role_name = ?", ViewerRole).First(&viewer).Error)
	assert.True(t, viewer.Can(models.PermView))
	assert.False(t, viewer.Can(models.PermEdit))
	assert.False(t, viewer.Can(models.PermExport))
}

func TestInitialAdminGeneratesPassword(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	require.NoError(t, Roles(ctx, db))

	created, err := InitialAdmin(ctx, db, "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = InitialAdmin(ctx, db, "")
	require.NoError(t, err)
	assert.False(t, created)
}
