package httpapi

import (
	"fmt"
	"sync"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const safariDateTag = "safaridate"

var (
	registerValidationsOnce sync.Once
	registerValidationsErr  error
)

// registerValidations adds the safaridate tag to gin's validator.
func registerValidations() error {
	registerValidationsOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerValidationsErr = fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
			return
		}
		registerValidationsErr = registerDateTag(engine, safariDateTag)
	})
	return registerValidationsErr
}

func registerDateTag(engine *validator.Validate, tag string) error {
	err := engine.RegisterValidation(tag, func(field validator.FieldLevel) bool {
		_, err := safari.NewSafariDate(field.Field().String())
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("register %q validation: %w", tag, err)
	}
	return nil
}
