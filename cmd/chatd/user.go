package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/app"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store/sqlite"
)

func newUserCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newUserCreateCmd(root), newUserRolesCmd(root), newUserListCmd(root))
	return cmd
}

// withAuth opens the store and hands an auth service to fn.
func withAuth(root *rootOptions, fn func(ctx context.Context, svc *auth.Service, st *sqlite.SQLiteStore) error) error {
	cfg, _, err := root.load(config.Config{})
	if err != nil {
		return err
	}
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return fn(context.Background(), auth.NewService(st, app.JWTConfig(&cfg)), st)
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func newUserCreateCmd(root *rootOptions) *cobra.Command {
	var username, password, name, roles string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a staff account",
		Example: "  chatd user create --username ana --password s3cret --name \"Ana Rojas\" --roles PERSONAL_BOMBERIL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuth(root, func(ctx context.Context, svc *auth.Service, _ *sqlite.SQLiteStore) error {
				user, err := svc.CreateUser(ctx, username, name, password, splitRoles(roles))
				if errors.Is(err, auth.ErrUserExists) {
					return fmt.Errorf("user %q already exists", username)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d %s roles=%s\n", user.ID, user.Username, strings.Join(user.Roles, ","))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name (3-32 characters)")
	cmd.Flags().StringVar(&password, "password", "", "initial password (at least 6 characters)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&roles, "roles", "", "comma separated role tags")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserRolesCmd(root *rootOptions) *cobra.Command {
	var username, roles string

	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Replace the role tags of a user",
		Long: `Replace the role tags of a user. Group membership follows roles,
so the change applies to the next message sent to each group.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuth(root, func(ctx context.Context, svc *auth.Service, st *sqlite.SQLiteStore) error {
				user, err := st.GetUserByUsername(ctx, username)
				if err != nil {
					return fmt.Errorf("find user %q: %w", username, err)
				}
				if err := svc.SetRoles(ctx, user.ID, splitRoles(roles)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s roles updated\n", user.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&roles, "roles", "", "comma separated role tags, empty clears all")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newUserListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuth(root, func(ctx context.Context, _ *auth.Service, st *sqlite.SQLiteStore) error {
				users, err := st.ListUsers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range users {
					fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Name(), strings.Join(u.Roles, ","))
				}
				return nil
			})
		},
	}
}
