package app

import (
	"context"
	"fmt"

	"tradedesk/internal/gateway"
)

// RegisterOptions configure the register command.
type RegisterOptions struct {
	Username string
	Email    string
	Password string
	FullName string
}

// LoginOptions configure the login command.
type LoginOptions struct {
	Email    string
	Password string
}

// Register creates a backend user.
func (a *App) Register(ctx context.Context, opts RegisterOptions) error {
	msg, err := a.newGateway().Register(ctx, gateway.Registration{
		Username: opts.Username,
		Email:    opts.Email,
		Password: opts.Password,
		FullName: opts.FullName,
	})
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "User registered successfully"
	}
	fmt.Fprintln(a.Out, okStyle.Render(msg))
	return nil
}

// Login checks credentials. No session is stored.
func (a *App) Login(ctx context.Context, opts LoginOptions) error {
	res, err := a.newGateway().Login(ctx, gateway.Credentials{Email: opts.Email, Password: opts.Password})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, okStyle.Render(res.Message))
	if res.User.Username != "" {
		fmt.Fprintf(a.Out, "Signed in as %s <%s>\n", res.User.Username, res.User.Email)
	}
	return nil
}

// Account prints the brokerage account backing trade execution.
func (a *App) Account(ctx context.Context) error {
	acct, err := a.newGateway().AccountStatus(ctx)
	if err != nil {
		return err
	}
	renderAccount(a.Out, acct)
	return nil
}
