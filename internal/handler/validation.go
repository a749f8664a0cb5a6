package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/clinicdesk/scheduling-api/internal/model"
)

// RegisterCustomValidators installs the scheduling field formats on gin's
// binding validator. Must run before the router starts serving.
func RegisterCustomValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	if err := v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := model.ParseTimeOfDay(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}

	return v.RegisterValidation("dateformat", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDate(fl.Field().String())
		return err == nil
	})
}
