package auth

import (
	"github.com/frahmantamala/orgtree/internal/core/common/validation"
)

type AdminLoginDTO struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (d AdminLoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("username", d.Username).Required().MaxLength(50)
	v.Field("password", d.Password).Required().MaxLength(50)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UserLoginDTO struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (d UserLoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(50)
	v.Field("password", d.Password).Required().MinLength(6).MaxLength(32)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
