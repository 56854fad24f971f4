package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/referral-tracker/internal/model"
	"github.com/iliyamo/referral-tracker/internal/utils"
)

func sampleAffiliate(id, email, code string) model.User {
	return model.User{
		ID:           id,
		FullName:     "Rita Ref",
		Email:        email,
		PasswordHash: "hash",
		Role:         model.RoleAffiliate,
		ReferralCode: code,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// ---------------------------------------------------------------------------
// Create / lookups
// ---------------------------------------------------------------------------

func TestUserRepo_CreateWritesIndexes(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	u := sampleAffiliate("u1", "Rita@Example.com", "rita-u1abcd")
	require.NoError(t, repo.Create(ctx, u))

	assert.True(t, mr.Exists("user:u1"))
	id, err := mr.Get("user:email:rita@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	id, err = mr.Get("user:referral:rita-u1abcd")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	ok, err := mr.SIsMember("users:affiliates", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("users:admins"))
}

func TestUserRepo_CreateRejectsUnknownRole(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewUserRepo(store)

	u := sampleAffiliate("u9", "x@example.com", "x-u9abcd")
	u.Role = "owner"
	err := repo.Create(context.Background(), u)

	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, mr.Exists("user:u9"))
	assert.False(t, mr.Exists("user:email:x@example.com"))
}

func TestUserRepo_Lookups(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	u := sampleAffiliate("u1", "rita@example.com", "rita-u1abcd")
	require.NoError(t, repo.Create(ctx, u))

	byID, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "rita@example.com", byID.Email)
	assert.Equal(t, "Rita Ref", byID.FullName)
	assert.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := repo.GetByEmail(ctx, "  RITA@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	byCode, err := repo.GetByReferralCode(ctx, "rita-u1abcd")
	require.NoError(t, err)
	assert.Equal(t, "u1", byCode.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByEmail(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByReferralCode(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_PasswordSurvivesRoundTrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	pairs := map[string]string{
		"a@x.com":          "secret123",
		"Mixed.Case@x.com": "päss wörd",
		"b+tag@x.com":      "123456",
	}
	i := 0
	for email, pw := range pairs {
		i++
		hash, err := utils.HashPassword(pw, 4)
		require.NoError(t, err)
		u := model.User{ID: fmt.Sprintf("u%d", i), Email: email, PasswordHash: hash, Role: model.RoleAffiliate}
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByEmail(ctx, email)
		require.NoError(t, err)
		assert.True(t, utils.VerifyPassword(got.PasswordHash, pw), email)
	}
}

func TestUserRepo_AdminHasNoReferralIndex(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewUserRepo(store)

	admin := model.User{ID: "a1", Email: "a@x.com", PasswordHash: "h", Role: model.RoleAdmin}
	require.NoError(t, repo.Create(context.Background(), admin))

	ok, err := mr.SIsMember("users:admins", "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("users:affiliates"))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, "user:referral:")
	}

	admins, err := repo.ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "a1", admins[0].ID)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUserRepo_UpdatePasswordHash(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	u := sampleAffiliate("u1", "rita@example.com", "rita-u1abcd")
	require.NoError(t, repo.Create(ctx, u))

	u.PasswordHash = "new-hash"
	require.NoError(t, repo.Update(ctx, u))

	got, err := repo.GetByEmail(ctx, "rita@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestUserRepo_UpdateRefusesIndexedFields(t *testing.T) {
	store, _ := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	u := sampleAffiliate("u1", "rita@example.com", "rita-u1abcd")
	require.NoError(t, repo.Create(ctx, u))

	changedEmail := u
	changedEmail.Email = "other@example.com"
	assert.ErrorIs(t, repo.Update(ctx, changedEmail), ErrIndexedFieldChanged)

	changedCode := u
	changedCode.ReferralCode = "new-code"
	assert.ErrorIs(t, repo.Update(ctx, changedCode), ErrIndexedFieldChanged)

	assert.ErrorIs(t, repo.Update(ctx, sampleAffiliate("ghost", "g@x.com", "")), ErrNotFound)
}

// ---------------------------------------------------------------------------
// ListAffiliates
// ---------------------------------------------------------------------------

func TestUserRepo_ListAffiliatesSkipsStaleIDs(t *testing.T) {
	store, mr := setupTestRedis(t)
	repo := NewUserRepo(store)
	ctx := context.Background()

	empty, err := repo.ListAffiliates(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.Create(ctx, sampleAffiliate("u1", "one@x.com", "one-u1")))
	require.NoError(t, repo.Create(ctx, sampleAffiliate("u2", "two@x.com", "two-u2")))
	_, err = mr.SAdd("users:affiliates", "stale-id")
	require.NoError(t, err)

	got, err := repo.ListAffiliates(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, u := range got {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}
