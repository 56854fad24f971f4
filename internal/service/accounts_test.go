package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/model"
	"github.com/iliyamo/referral-tracker/internal/repository"
	"github.com/iliyamo/referral-tracker/internal/utils"
)

type sentEmail struct {
	Kind string
	To   string
	Link string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeNotifier) PasswordReset(_ context.Context, email, link string) error {
	return f.record("reset", email, link)
}

func (f *fakeNotifier) AffiliateInvite(_ context.Context, email, link string) error {
	return f.record("invite", email, link)
}

func (f *fakeNotifier) record(kind, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{Kind: kind, To: to, Link: link})
	return nil
}

func (f *fakeNotifier) last(t *testing.T) sentEmail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func setupAccounts(t *testing.T) (*Accounts, *fakeNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := kv.NewRedisStore(client)

	n := &fakeNotifier{}
	a := NewAccounts(
		repository.NewUserRepo(store),
		repository.NewSessionRepo(store, time.Hour),
		repository.NewResetRepo(store, time.Hour),
		repository.NewInviteRepo(store),
		repository.NewReferralRepo(store),
		n,
		Options{AppURL: "http://app.test/", BcryptCost: 4},
	)
	return a, n, mr
}

// ----------------------------------------------------------------------------
// Signup
// ----------------------------------------------------------------------------

func TestSignupAffiliate(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	res, err := a.SignupAffiliate(ctx, SignupInput{FullName: "Jo", Email: " Jo.Doe@X.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "jo.doe@x.com", res.User.Email)
	assert.Equal(t, model.RoleAffiliate, res.User.Role)
	assert.True(t, strings.HasPrefix(res.User.ReferralCode, "jodoe-"))
	assert.Equal(t, "jodoe-"+res.User.ID[:6], res.User.ReferralCode)
	assert.Empty(t, res.User.ReferredBy)
	assert.NotEmpty(t, res.SessionID)

	sess, err := a.Sessions.Resolve(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sess.UserID)

	stored, err := a.Users.GetByEmail(ctx, "JO.DOE@x.com")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "secret1"))

	stats, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalAffiliates)
	assert.Equal(t, int64(0), stats.TotalReferrals)
}

func TestSignupAffiliate_Validation(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := a.SignupAffiliate(ctx, SignupInput{Email: "", Password: "secret1"})
	assert.ErrorIs(t, err, repository.ErrValidation)

	_, err = a.SignupAffiliate(ctx, SignupInput{Email: "a@x.com", Password: "123"})
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestSignupAffiliate_DuplicateEmail(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := a.SignupAffiliate(ctx, SignupInput{Email: "dup@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = a.SignupAffiliate(ctx, SignupInput{Email: "DUP@x.com", Password: "secret2"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSignupAffiliate_ReferralAttribution(t *testing.T) {
	a, _, mr := setupAccounts(t)
	ctx := context.Background()

	referrer, err := a.SignupAffiliate(ctx, SignupInput{Email: "r@x.com", Password: "secret1"})
	require.NoError(t, err)
	code := referrer.User.ReferralCode

	before, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)

	referred, err := a.SignupAffiliate(ctx, SignupInput{Email: "new@x.com", Password: "secret1", Ref: code})
	require.NoError(t, err)
	assert.Equal(t, code, referred.User.ReferredBy)

	events, err := a.Referrals.ForCode(ctx, code)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, referred.User.ID, events[0].ReferredUserID)
	assert.True(t, mr.Exists("referrals:byRef:"+code))

	after, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalReferrals+1, after.TotalReferrals)
	assert.Equal(t, before.TotalAffiliates+1, after.TotalAffiliates)
}

func TestSignupAffiliate_RefNotCreditedForAdminOrUnknown(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	res, err := a.SignupAffiliate(ctx, SignupInput{Email: "n@x.com", Password: "secret1", Ref: "nobody-123456"})
	require.NoError(t, err)
	assert.Empty(t, res.User.ReferredBy)

	require.NoError(t, a.Users.Create(ctx, model.User{ID: "adm", Email: "adm@x.com", Role: model.RoleAdmin, ReferralCode: "adm-000000"}))
	res, err = a.SignupAffiliate(ctx, SignupInput{Email: "m@x.com", Password: "secret1", Ref: "adm-000000"})
	require.NoError(t, err)
	assert.Empty(t, res.User.ReferredBy)

	stats, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalReferrals)
}

func TestSignupAdmin(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := a.SignupAdmin(ctx, AdminSignupInput{Email: "a@x.com", Password: "short"})
	assert.ErrorIs(t, err, repository.ErrValidation)

	res, err := a.SignupAdmin(ctx, AdminSignupInput{Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.User.Role)
	assert.Empty(t, res.User.ReferralCode)

	admins, err := a.Users.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	stats, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalAffiliates)
}

// ----------------------------------------------------------------------------
// Invites
// ----------------------------------------------------------------------------

func TestInviteFlow_AdminInviteSignupThenReuseRejected(t *testing.T) {
	a, n, _ := setupAccounts(t)
	ctx := context.Background()

	admin, err := a.SignupAdmin(ctx, AdminSignupInput{Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)

	inv, err := a.InviteAffiliate(ctx, admin.User.ID, "b@x.com")
	require.NoError(t, err)
	assert.True(t, inv.Notified)
	assert.Equal(t, "http://app.test/signup?invite="+inv.Invite.InviteCode, inv.Link)
	sent := n.last(t)
	assert.Equal(t, "invite", sent.Kind)
	assert.Equal(t, "b@x.com", sent.To)

	res, err := a.SignupAffiliate(ctx, SignupInput{Email: "b@x.com", Password: "secret1", Invite: inv.Invite.InviteCode})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAffiliate, res.User.Role)

	stored, err := a.Invites.Get(ctx, inv.Invite.InviteCode)
	require.NoError(t, err)
	assert.True(t, stored.Used)

	_, err = a.SignupAffiliate(ctx, SignupInput{Email: "b@x.com", Password: "secret1", Invite: inv.Invite.InviteCode})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestSignupAffiliate_InviteEmailMismatch(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	inv, err := a.InviteAffiliate(ctx, "admin-1", "B@X.com")
	require.NoError(t, err)

	_, err = a.SignupAffiliate(ctx, SignupInput{Email: "c@x.com", Password: "secret1", Invite: inv.Invite.InviteCode})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)

	_, err = a.Users.GetByEmail(ctx, "c@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Case differences on either side are accepted.
	_, err = a.SignupAffiliate(ctx, SignupInput{Email: "b@X.COM", Password: "secret1", Invite: inv.Invite.InviteCode})
	assert.NoError(t, err)
}

func TestSignupAffiliate_UnknownInvite(t *testing.T) {
	a, _, _ := setupAccounts(t)
	_, err := a.SignupAffiliate(context.Background(), SignupInput{Email: "b@x.com", Password: "secret1", Invite: "deadbeef"})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestInviteAffiliate_NotifierFailureKeepsInvite(t *testing.T) {
	a, n, _ := setupAccounts(t)
	n.err = errors.New("broker down")
	ctx := context.Background()

	res, err := a.InviteAffiliate(ctx, "admin-1", "b@x.com")
	require.NoError(t, err)
	assert.False(t, res.Notified)

	_, err = a.Invites.Get(ctx, res.Invite.InviteCode)
	assert.NoError(t, err)

	_, err = a.InviteAffiliate(ctx, "admin-1", "not-an-email")
	assert.ErrorIs(t, err, repository.ErrValidation)
}

// ----------------------------------------------------------------------------
// Login / logout
// ----------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := a.SignupAffiliate(ctx, SignupInput{Email: "u@x.com", Password: "secret1"})
	require.NoError(t, err)

	res, err := a.Login(ctx, LoginInput{Email: "U@x.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)

	_, err = a.Login(ctx, LoginInput{Email: "u@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)

	_, err = a.Login(ctx, LoginInput{Email: "ghost@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)
}

func TestAdminLogin_RejectsAffiliate(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := a.SignupAffiliate(ctx, SignupInput{Email: "u@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = a.SignupAdmin(ctx, AdminSignupInput{Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = a.AdminLogin(ctx, LoginInput{Email: "u@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)

	res, err := a.AdminLogin(ctx, LoginInput{Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.User.Role)
}

func TestLogout(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	res, err := a.SignupAffiliate(ctx, SignupInput{Email: "u@x.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, res.SessionID))
	_, err = a.Sessions.Resolve(ctx, res.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, a.Logout(ctx, res.SessionID))
	assert.NoError(t, a.Logout(ctx, ""))
}

func TestReferralCode(t *testing.T) {
	assert.Equal(t, "johndoex-abcdef", ReferralCode("John.Doe+x@mail.com", "abcdef12-3456"))
	assert.Equal(t, "-abc", ReferralCode("...@x.com", "abc"))
}

func TestSignupAffiliate_CreditsExistingCode(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	require.NoError(t, a.Users.Create(ctx, model.User{
		ID:           "r-id",
		Email:        "r@x.com",
		Role:         model.RoleAffiliate,
		ReferralCode: "r-abc123",
		CreatedAt:    time.Now().UTC(),
	}))
	before, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)

	res, err := a.SignupAffiliate(ctx, SignupInput{Email: "new@x.com", Password: "secret1", Ref: "r-abc123"})
	require.NoError(t, err)
	assert.Equal(t, "r-abc123", res.User.ReferredBy)

	events, err := a.Referrals.ForCode(ctx, "r-abc123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r-abc123", events[0].ReferrerCode)
	assert.Equal(t, res.User.ID, events[0].ReferredUserID)

	after, err := a.Referrals.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalReferrals+1, after.TotalReferrals)
}

func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestSignupAffiliate_ReferralCodeCollisionPicksNewID(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	require.NoError(t, a.Users.Create(ctx, model.User{
		ID:           "holder",
		Email:        "sam@other.com",
		Role:         model.RoleAffiliate,
		ReferralCode: "sam-aaaaaa",
		CreatedAt:    time.Now().UTC(),
	}))
	a.newID = sequenceIDs("aaaaaa11-0000", "bbbbbb22-0000")

	res, err := a.SignupAffiliate(ctx, SignupInput{Email: "sam@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb22-0000", res.User.ID)
	assert.Equal(t, "sam-bbbbbb", res.User.ReferralCode)

	holder, err := a.Users.GetByReferralCode(ctx, "sam-aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "holder", holder.ID)
}

func TestSignupAffiliate_ReferralCodeCollisionConflict(t *testing.T) {
	a, _, _ := setupAccounts(t)
	ctx := context.Background()

	require.NoError(t, a.Users.Create(ctx, model.User{
		ID:           "holder",
		Email:        "sam@other.com",
		Role:         model.RoleAffiliate,
		ReferralCode: "sam-aaaaaa",
		CreatedAt:    time.Now().UTC(),
	}))
	a.newID = sequenceIDs("aaaaaa11-0000")

	_, err := a.SignupAffiliate(ctx, SignupInput{Email: "sam@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = a.Users.GetByEmail(ctx, "sam@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
