package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/arcticchat/internal/common"
	"github.com/dmitrijs2005/arcticchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitelist(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedUser(t, "boss", models.RoleDeveloper)
	e.seedUser(t, "staff", models.RoleStaff)

	entry, err := e.whitelist.Add(ctx, "boss", "Person@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", entry.Email)

	ok, err := e.whitelist.IsWhitelisted(ctx, "  PERSON@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.whitelist.IsWhitelisted(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.whitelist.Add(ctx, "boss", "person@example.com")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	_, err = e.whitelist.Add(ctx, "boss", "not an email")
	assert.ErrorIs(t, err, common.ErrorValidation)

	// Weight 50 is not above the threshold.
	_, err = e.whitelist.Add(ctx, "staff", "x@example.com")
	var denied *common.AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "below_admin_threshold", denied.Reason)

	list, err := e.whitelist.List(ctx, "boss")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, e.whitelist.Remove(ctx, "boss", "PERSON@example.com"))
	assert.ErrorIs(t, e.whitelist.Remove(ctx, "boss", "person@example.com"), common.ErrorNotFound)
}
