package apperror_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/apperror"
)

func TestErrorFormatting(t *testing.T) {
	err := apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonMonotoneProfile, "profile levels must increase")
	assert.Contains(t, err.Error(), "load_validation")
	assert.Contains(t, err.Error(), "NON_MONOTONE_PROFILE")

	withField := err.WithField("basin.profile.level")
	assert.Contains(t, withField.Error(), "field: basin.profile.level")
	assert.NotContains(t, err.Error(), "field:", "WithField must not mutate the receiver")
}

func TestErrorWrapUnwrap(t *testing.T) {
	cause := errors.New("sqlite: no such table")
	wrapped := apperror.Wrap(apperror.CategoryConfiguration, apperror.CodeInvalidConfigValue, "failed to read schema", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWithDetailDoesNotMutateSiblings(t *testing.T) {
	base := apperror.New(apperror.CategoryRuntimeNumerical, apperror.CodeIntegratorDiverged, "step rejected repeatedly")
	a := base.WithDetail("node", 12)
	b := base.WithDetail("node", 99)
	require.Equal(t, 12, a.Details["node"])
	require.Equal(t, 99, b.Details["node"])
	assert.Nil(t, base.Details)
}

func TestMultiErrorAggregatesAndWrapsPlainErrors(t *testing.T) {
	var agg apperror.MultiError
	agg.Add(nil)
	agg.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeDuplicateLink, "link 3 repeated"))
	agg.Add(errors.New("unexpected column count"))

	require.Len(t, agg.Errors, 2)
	assert.True(t, agg.HasCode(apperror.CodeDuplicateLink))
	assert.True(t, agg.HasCode(apperror.CodeSchemaViolation))
	assert.False(t, agg.HasCode(apperror.CodeLPInfeasible))

	err := agg.AsError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestMultiErrorAsErrorNilWhenEmpty(t *testing.T) {
	var agg apperror.MultiError
	assert.Nil(t, agg.AsError())
}
