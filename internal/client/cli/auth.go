package cli

import (
	"context"

	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// SignIn prompts for email and password. The password byte slice is wiped
// before returning.
func (a *App) SignIn(ctx context.Context) error {
	a.auth.Open()

	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	id, ok := a.auth.SignIn(ctx, email, string(password))
	if !ok {
		a.println(a.auth.State().Err)
		return nil
	}
	a.println("Connecté en tant que", id.Email)
	return nil
}

// SignUp prompts for email, password and an optional username.
func (a *App) SignUp(ctx context.Context) error {
	a.auth.Open()

	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	username, err := getSimpleText(a.reader, "Nom d'utilisateur (optionnel)", a.out)
	if err != nil {
		return err
	}

	if _, ok := a.auth.SignUp(ctx, email, string(password), username); !ok {
		a.println(a.auth.State().Err)
		return nil
	}
	a.println(a.auth.State().Message)
	return nil
}

func (a *App) SignOut(ctx context.Context) error {
	a.auth.SignOut(ctx)
	a.println("Déconnecté.")
	return nil
}
