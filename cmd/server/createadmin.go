package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yamdb/internal/apperrors"
	"yamdb/internal/auth"
	"yamdb/internal/config"
	"yamdb/internal/db"
	"yamdb/internal/mail"
	"yamdb/internal/models"
)

var (
	adminUsername string
	adminEmail    string
	adminRole     string
)

var createAdminCmd = &cobra.Command{
	Use:   "createadmin",
	Short: "Create a superuser and send it a confirmation code",
	Long: `Create a superuser account and mail it a confirmation code, which is
also printed. The code can be exchanged for an access token at
POST /api/v1/auth/token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()

		limits := config.DefaultLimits()
		errs := apperrors.FieldErrors{}
		auth.ValidateUsername(limits, adminUsername, errs)
		auth.ValidateEmail(limits, adminEmail, errs)
		role := models.Role(adminRole)
		if !role.Valid() {
			errs.Add("role", fmt.Sprintf("%q is not a valid role", adminRole))
		}
		if err := errs.Err(); err != nil {
			return err
		}

		logger := newLogger()
		sender, err := mail.New(cfg.Mail, logger)
		if err != nil {
			return err
		}
		store := db.New(conn)
		tokens := auth.NewManager(cfg.SecretKey, cfg.AccessTokenTTL)
		flow := auth.NewFlow(store, tokens, sender, cfg.Mail.From, cfg.ConfirmationTTL, limits, logger)

		u := &models.User{Username: adminUsername, Email: adminEmail, Role: role, Superuser: true}
		if err := store.CreateUser(cmd.Context(), u); err != nil {
			return err
		}
		code, err := flow.SendCode(cmd.Context(), u)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created superuser %s\nconfirmation code (also mailed to %s): %s\n",
			u.Username, u.Email, code)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "Username (required)")
	createAdminCmd.Flags().StringVarP(&adminEmail, "email", "e", "", "Email address (required)")
	createAdminCmd.Flags().StringVar(&adminRole, "role", string(models.RoleAdmin), "Role to store alongside the superuser flag")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")
}
