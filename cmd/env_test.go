package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
)

func TestUnconfiguredRunner_SurfacesAsCredentialFailure(t *testing.T) {
	card := model.NewCard("front.jpg", "")

	_, err := unconfiguredRunner{}.Run(context.Background(), card, nil)
	require.Error(t, err)

	failed, applyErr := lifecycle.Apply(card, lifecycle.StageFailed{Err: err})
	require.NoError(t, applyErr)
	assert.Equal(t, model.StatusGradingFailed, failed.Status)
	assert.Equal(t, model.ErrorKindCredential, failed.ErrorKind)
	assert.Contains(t, failed.ErrorMessage, "not configured")
}
