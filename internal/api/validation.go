package api

import "github.com/go-playground/validator/v10"

var validate = validator.New()

func validateStruct(s any) error {
	return validate.Struct(s)
}
