package httpapi

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestRegisterDateTag(test *testing.T) {
	engine := validator.New()
	require.NoError(test, registerDateTag(engine, safariDateTag))
	require.NoError(test, engine.Var(testDate, safariDateTag))
	require.Error(test, engine.Var("14/03/2025", safariDateTag))

	require.Error(test, registerDateTag(validator.New(), ""))
}

func TestRegisterValidationsOnGinEngine(test *testing.T) {
	require.NoError(test, registerValidations())
	require.NoError(test, registerValidations())
}
