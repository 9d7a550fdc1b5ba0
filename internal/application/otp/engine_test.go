package otp

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-todo-api/internal/domain"
	"github.com/go-todo-api/internal/infrastructure/memory"
	"github.com/go-todo-api/internal/pkg/hash"
)

type sentMessage struct {
	to, subject, body string
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *capturingNotifier) Notify(_ context.Context, to, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to: to, subject: subject, body: body})
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (n *capturingNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	code := codePattern.FindString(n.sent[len(n.sent)-1].body)
	require.NotEmpty(t, code)
	return code
}

// failingStore fails every Save with err.
type failingStore struct {
	domain.CredentialStore
	err error
}

func (s failingStore) Save(context.Context, *domain.User) error { return s.err }

var testConfig = Config{
	VerifyTTL:       5 * time.Minute,
	VerifyResendTTL: 7 * 24 * time.Hour,
	ResetTTL:        5 * time.Minute,
	BcryptCost:      bcrypt.MinCost,
}

type fixture struct {
	engine   *Engine
	store    *memory.UserStore
	notifier *capturingNotifier
	user     *domain.User
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewUserStore(),
		notifier: &capturingNotifier{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.store, f.notifier, testConfig)
	f.engine.now = func() time.Time { return f.clock }

	u, err := f.store.Create(context.Background(), "a@x.com", "hash")
	require.NoError(t, err)
	f.user = u
	return f
}

func TestGenerate_Range(t *testing.T) {
	for i := 0; i < 2000; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestIssue_AppendsHashedEntryAndNotifiesPlaintext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))

	code := f.notifier.lastCode(t)
	require.Len(t, f.user.EmailVerificationOTPs, 1)
	entry := f.user.EmailVerificationOTPs[0]
	assert.NotEqual(t, code, entry.OTPHash)
	assert.NotContains(t, f.notifier.sent[0].body, entry.OTPHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(entry.OTPHash), []byte(code)))
	assert.Equal(t, f.clock.Add(5*time.Minute), entry.Expiry)
	assert.False(t, entry.Used)
	assert.Equal(t, "a@x.com", f.notifier.sent[0].to)
	assert.Contains(t, f.notifier.sent[0].body, "5 minutes")

	stored, err := f.store.FindByID(ctx, f.user.UserID)
	require.NoError(t, err)
	assert.Len(t, stored.EmailVerificationOTPs, 1)
	assert.Empty(t, stored.ResetOTPs)
}

func TestIssue_TTLPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	require.NoError(t, f.engine.Issue(ctx, f.user, Resend))
	require.NoError(t, f.engine.Issue(ctx, f.user, Reset))

	require.Len(t, f.user.EmailVerificationOTPs, 2)
	require.Len(t, f.user.ResetOTPs, 1)
	assert.Equal(t, f.clock.Add(5*time.Minute), f.user.EmailVerificationOTPs[0].Expiry)
	assert.Equal(t, f.clock.Add(7*24*time.Hour), f.user.EmailVerificationOTPs[1].Expiry)
	assert.Equal(t, f.clock.Add(5*time.Minute), f.user.ResetOTPs[0].Expiry)
	assert.Contains(t, f.notifier.sent[1].body, "7 days")
	assert.Contains(t, f.notifier.sent[2].subject, "password reset")
}

func TestIssue_SaveFailureSkipsNotification(t *testing.T) {
	f := newFixture(t)
	f.engine.store = failingStore{CredentialStore: f.store, err: domain.ErrStoreUnavailable}

	err := f.engine.Issue(context.Background(), f.user, Registration)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.user.EmailVerificationOTPs)
}

func TestIssue_ReappliesAfterVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.user.Clone()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))

	require.NoError(t, f.engine.Issue(ctx, stale, Resend))

	stored, err := f.store.FindByID(ctx, f.user.UserID)
	require.NoError(t, err)
	assert.Len(t, stored.EmailVerificationOTPs, 2)
}

func TestVerify_ConsumesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)

	require.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, nil))
	assert.True(t, f.user.EmailVerificationOTPs[0].Used)

	err := f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, nil)
	assert.ErrorIs(t, err, domain.ErrOTPInvalid)
	assert.Len(t, f.user.EmailVerificationOTPs, 1)
}

func TestVerify_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)

	f.clock = f.clock.Add(5*time.Minute + time.Second)
	err := f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, nil)
	assert.ErrorIs(t, err, domain.ErrOTPInvalid)
	assert.False(t, f.user.EmailVerificationOTPs[0].Used)
}

func TestVerify_ValidAtExpiryInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Reset))
	code := f.notifier.lastCode(t)

	f.clock = f.clock.Add(5 * time.Minute)
	assert.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeReset, code, nil))
}

func TestVerify_WrongAndMalformedCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)

	wrong := "100000"
	if code == wrong {
		wrong = "100001"
	}
	for _, candidate := range []string{wrong, "", "12345", "1234567", "abcdef", " " + code} {
		err := f.engine.Verify(ctx, f.user, domain.PurposeVerify, candidate, nil)
		assert.ErrorIs(t, err, domain.ErrOTPInvalid, candidate)
	}
	assert.False(t, f.user.EmailVerificationOTPs[0].Used)
}

func TestVerify_PurposesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)

	err := f.engine.Verify(ctx, f.user, domain.PurposeReset, code, nil)
	assert.ErrorIs(t, err, domain.ErrOTPInvalid)
}

func TestVerify_OldestMatchFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.MinCost)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		f.user.ResetOTPs = append(f.user.ResetOTPs, domain.OTPEntry{
			OTPHash: string(h), Expiry: f.clock.Add(time.Minute), CreatedAt: f.clock,
		})
	}
	require.NoError(t, f.store.Save(ctx, f.user))

	require.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeReset, "123456", nil))
	assert.True(t, f.user.ResetOTPs[0].Used)
	assert.False(t, f.user.ResetOTPs[1].Used)

	require.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeReset, "123456", nil))
	assert.True(t, f.user.ResetOTPs[1].Used)
}

func TestVerify_SkipsExpiredEntryForLaterOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	f.clock = f.clock.Add(6 * time.Minute)
	require.NoError(t, f.engine.Issue(ctx, f.user, Resend))
	code := f.notifier.lastCode(t)

	require.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, nil))
	assert.False(t, f.user.EmailVerificationOTPs[0].Used)
	assert.True(t, f.user.EmailVerificationOTPs[1].Used)
}

func TestVerify_ApplyRunsInSameWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)
	version := f.user.Version

	err := f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, func(u *domain.User) error {
		u.IsVerified = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, version+1, f.user.Version)

	stored, err := f.store.FindByID(ctx, f.user.UserID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.True(t, stored.EmailVerificationOTPs[0].Used)
}

func TestVerify_ApplyErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)
	stop := errors.New("stop")

	err := f.engine.Verify(ctx, f.user, domain.PurposeVerify, code, func(*domain.User) error { return stop })
	assert.ErrorIs(t, err, stop)

	stored, err := f.store.FindByID(ctx, f.user.UserID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerificationOTPs[0].Used)
	assert.False(t, f.user.EmailVerificationOTPs[0].Used)
}

func TestVerify_ConcurrentAttemptsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Registration))
	code := f.notifier.lastCode(t)

	const workers = 8
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		u, err := f.store.FindByID(ctx, f.user.UserID)
		require.NoError(t, err)
		go func(u *domain.User) {
			start.Wait()
			results <- f.engine.Verify(ctx, u, domain.PurposeVerify, code, nil)
		}(u)
	}
	start.Done()

	wins := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCheck_DoesNotConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Issue(ctx, f.user, Reset))
	code := f.notifier.lastCode(t)
	version := f.user.Version

	assert.True(t, f.engine.Check(f.user, domain.PurposeReset, code))
	assert.True(t, f.engine.Check(f.user, domain.PurposeReset, code))
	assert.False(t, f.engine.Check(f.user, domain.PurposeVerify, code))
	assert.Equal(t, version, f.user.Version)
	assert.NoError(t, f.engine.Verify(ctx, f.user, domain.PurposeReset, code, nil))
}

func TestValidity(t *testing.T) {
	assert.Equal(t, "5 minutes", validity(5*time.Minute))
	assert.Equal(t, "1 minute", validity(time.Minute))
	assert.Equal(t, "7 days", validity(7*24*time.Hour))
	assert.Equal(t, "2 hours", validity(2*time.Hour))
	assert.Equal(t, "1m30s", validity(90*time.Second))
}

type countingHasher struct {
	hash.Bcrypt
	mu     sync.Mutex
	hashes int
}

func (h *countingHasher) Hash(plain string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return h.Bcrypt.Hash(plain)
}

func TestDecoy_HashesLikeIssue(t *testing.T) {
	f := newFixture(t)
	issued := &countingHasher{Bcrypt: hash.Bcrypt{Cost: bcrypt.MinCost}}
	f.engine.hasher = issued
	require.NoError(t, f.engine.Issue(context.Background(), f.user, Reset))

	decoy := &countingHasher{Bcrypt: hash.Bcrypt{Cost: bcrypt.MinCost}}
	f.engine.hasher = decoy
	f.engine.Decoy()

	assert.Equal(t, 1, issued.hashes)
	assert.Equal(t, issued.hashes, decoy.hashes)
	assert.Len(t, f.notifier.sent, 1, "decoy must not notify")
	stored, err := f.store.FindByID(context.Background(), f.user.UserID)
	require.NoError(t, err)
	assert.Len(t, stored.ResetOTPs, 1, "decoy must not write")
}
