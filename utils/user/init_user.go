// Command init_user creates an account or resets its password and role.
//
//	go run ./utils/user -username alice -password secret123 -role editor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/db"
	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/seed"
	"github.com/enzococca/mekan-admin/src/services"
	"gorm.io/gorm"
)

type options struct {
	username string
	password string
	role     string
	email    string
	fullName string
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("init_user", flag.ContinueOnError)
	fs.StringVar(&o.username, "username", "", "account name")
	fs.StringVar(&o.password, "password", "", "password (6 to 72 bytes)")
	fs.StringVar(&o.role, "role", seed.ViewerRole, "role name: admin, editor or viewer")
	fs.StringVar(&o.email, "email", "", "email address")
	fs.StringVar(&o.fullName, "full-name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.username == "" || o.password == "" {
		return o, errors.New("-username and -password are required")
	}
	return o, nil
}

func main() {
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("error loading configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"})

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("error connecting to database")
	}

	created, err := run(context.Background(), conn, o)
	if err != nil {
		logging.Fatal().Err(err).Str("username", o.username).Msg("user setup failed")
	}
	if created {
		logging.Info().Str("username", o.username).Str("role", o.role).Msg("user created")
	} else {
		logging.Info().Str("username", o.username).Str("role", o.role).Msg("user updated")
	}
}

// run creates the user, or updates password and role when it already exists.
func run(ctx context.Context, conn *gorm.DB, o options) (bool, error) {
	if err := seed.Migrate(conn); err != nil {
		return false, err
	}
	if err := seed.Roles(ctx, conn); err != nil {
		return false, err
	}

	users := services.NewUserService(conn)
	role, err := users.RoleByName(ctx, o.role)
	if err != nil {
		return false, err
	}

	existing, err := users.FindByUsername(ctx, o.username)
	switch {
	case errors.Is(err, services.ErrNotFound):
		_, err = users.CreateUser(ctx, services.NewUser{
			Username: o.username,
			Password: o.password,
			Email:    o.email,
			FullName: o.fullName,
			RoleID:   role.RoleID,
		})
		return err == nil, err
	case err != nil:
		return false, err
	}

	if err := users.SetPassword(ctx, existing.UserID, o.password); err != nil {
		return false, err
	}
	update := services.UserUpdate{
		FullName: existing.FullName,
		Email:    existing.Email,
		RoleID:   role.RoleID,
		IsActive: true,
	}
	if existing.Organization != nil {
		update.Organization = *existing.Organization
	}
	if o.email != "" {
		update.Email = o.email
	}
	if o.fullName != "" {
		update.FullName = o.fullName
	}
	return false, users.UpdateUser(ctx, existing.UserID, existing.UserID, update)
}
