package db

import (
	"context"
)

// User is a row returned by public.verificar_login
type User struct {
	UserID        string
	Email         string
	Nombre        string
	Rol           string
	EmpresaAlias  string
	EmpresaNombre string
}

// VerifyLogin checks credentials through the verificar_login function.
// Any error other than ErrNoDatabase means the credentials were rejected.
func VerifyLogin(ctx context.Context, empresaAlias, email, password string) (*User, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}

	query := `SELECT user_id, email, nombre, rol, empresa_alias, empresa_nombre
             FROM public.verificar_login($1, $2, $3)`

	var u User
	err := Pool.QueryRow(ctx, query, empresaAlias, email, password).Scan(
		&u.UserID, &u.Email, &u.Nombre, &u.Rol, &u.EmpresaAlias, &u.EmpresaNombre,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RegisterLogin records the last login time of a user
func RegisterLogin(ctx context.Context, empresaAlias, userID string) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	_, err := Pool.Exec(ctx, "SELECT public.registrar_login($1, $2::uuid)", empresaAlias, userID)
	return err
}
