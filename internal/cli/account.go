package cli

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var (
	registerOpts app.RegisterOptions
	loginOpts    app.LoginOptions
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a backend user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Register(cmd.Context(), registerOpts)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check credentials against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Login(cmd.Context(), loginOpts)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the brokerage account status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Account(cmd.Context())
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerOpts.Username, "username", "", "Username")
	registerCmd.Flags().StringVar(&registerOpts.Email, "email", "", "Email address")
	registerCmd.Flags().StringVar(&registerOpts.Password, "password", "", "Password")
	registerCmd.Flags().StringVar(&registerOpts.FullName, "full-name", "", "Full name")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	loginCmd.Flags().StringVar(&loginOpts.Email, "email", "", "Email address")
	loginCmd.Flags().StringVar(&loginOpts.Password, "password", "", "Password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
}
