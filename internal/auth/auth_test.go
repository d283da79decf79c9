package auth

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yamdb/internal/apperrors"
	"yamdb/internal/config"
	"yamdb/internal/db"
	mailer "yamdb/internal/mail"
	"yamdb/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, m mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.err
}

func (r *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	body := r.sent[len(r.sent)-1].Body
	return strings.TrimSpace(body[strings.LastIndex(body, "\n")+1:])
}

func newTestFlow(t *testing.T) (*Flow, *recordingSender, *db.Store, *bytes.Buffer) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn))
	store := db.New(conn)

	sender := &recordingSender{}
	var logs bytes.Buffer
	flow := NewFlow(store, NewManager("test-secret", time.Hour), sender, "support@yamdb.ru",
		time.Hour, config.DefaultLimits(), log.New(&logs, "", 0))
	return flow, sender, store, &logs
}

func TestIssueAndParse(t *testing.T) {
	m := NewManager("k", time.Hour)
	token, err := m.Issue(&models.User{ID: 42, Username: "alice"})
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	token, err := NewManager("k1", time.Hour).Issue(&models.User{ID: 1})
	require.NoError(t, err)

	_, err = NewManager("k2", time.Hour).Parse(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewManager("k", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := m.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewManager("k", time.Hour).Parse(token)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok, err := BearerToken(r)
	assert.False(t, ok)
	assert.NoError(t, err)

	r.Header.Set("Authorization", "Bearer abc")
	token, ok, err := BearerToken(r)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, ok, err = BearerToken(r)
	assert.True(t, ok)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestCodes(t *testing.T) {
	code, hash, err := NewCode()
	require.NoError(t, err)
	assert.Len(t, code, 32)
	assert.NotContains(t, hash, code)
	assert.True(t, CheckCode(hash, code))
	assert.False(t, CheckCode(hash, "nope"))
	assert.False(t, CheckCode("", code))
}

func TestSignupAndExchange(t *testing.T) {
	flow, sender, _, _ := newTestFlow(t)
	ctx := context.Background()

	u, err := flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
	code := sender.lastCode(t)

	_, err = flow.Exchange(ctx, "alice", "wrong")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)

	token, err := flow.Exchange(ctx, "alice", code)
	require.NoError(t, err)
	claims, err := flow.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	// single use
	_, err = flow.Exchange(ctx, "alice", code)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestSignupRepeatReissuesCode(t *testing.T) {
	flow, sender, _, _ := newTestFlow(t)
	ctx := context.Background()

	first, err := flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	oldCode := sender.lastCode(t)

	again, err := flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	newCode := sender.lastCode(t)
	assert.NotEqual(t, oldCode, newCode)

	_, err = flow.Exchange(ctx, "alice", oldCode)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	_, err = flow.Exchange(ctx, "alice", newCode)
	assert.NoError(t, err)
}

func TestSignupConflicts(t *testing.T) {
	flow, _, _, _ := newTestFlow(t)
	ctx := context.Background()
	_, err := flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	_, err = flow.Signup(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		email    string
		fields   []string
	}{
		{"username taken", "alice", "new@example.com", []string{"username"}},
		{"email taken", "carol", "alice@example.com", []string{"email"}},
		{"both taken by different users", "alice", "bob@example.com", []string{"username", "email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.Signup(ctx, tt.username, tt.email)
			require.ErrorIs(t, err, apperrors.ErrConflict)
			e, _ := apperrors.As(err)
			assert.Len(t, e.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, e.Fields, f)
			}
		})
	}
}

func TestSignupValidation(t *testing.T) {
	flow, sender, _, _ := newTestFlow(t)
	ctx := context.Background()

	tests := []struct {
		name, username, email, field string
	}{
		{"reserved username", "me", "me@example.com", "username"},
		{"bad characters", "al ice", "a@example.com", "username"},
		{"too long", strings.Repeat("a", 151), "a@example.com", "username"},
		{"missing email", "alice", "", "email"},
		{"bad email", "alice", "not-an-email", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.Signup(ctx, tt.username, tt.email)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			e, _ := apperrors.As(err)
			assert.Contains(t, e.Fields, tt.field)
		})
	}
	assert.Empty(t, sender.sent)
}

func TestSignupSurvivesMailFailure(t *testing.T) {
	flow, sender, _, logs := newTestFlow(t)
	sender.err = errors.New("smtp down")

	_, err := flow.Signup(context.Background(), "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "smtp down")

	_, err = flow.Exchange(context.Background(), "alice", sender.lastCode(t))
	assert.NoError(t, err)
}

func TestExchangeUnknownUserAndExpiredCode(t *testing.T) {
	flow, sender, _, _ := newTestFlow(t)
	ctx := context.Background()

	_, err := flow.Exchange(ctx, "ghost", "whatever")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	_, err = flow.Exchange(ctx, "", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	flow.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = flow.Exchange(ctx, "alice", sender.lastCode(t))
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestExchangeConcurrentSingleUse(t *testing.T) {
	flow, sender, _, _ := newTestFlow(t)
	ctx := context.Background()
	_, err := flow.Signup(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	code := sender.lastCode(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		refused int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := flow.Exchange(ctx, "alice", code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				issued++
			} else if errors.Is(err, apperrors.ErrAuthentication) {
				refused++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, workers-1, refused)
}

func TestSendCodeMailsReturnedCode(t *testing.T) {
	flow, sender, store, _ := newTestFlow(t)
	ctx := context.Background()
	u := &models.User{Username: "root", Email: "root@example.com", Role: models.RoleAdmin, Superuser: true}
	require.NoError(t, store.CreateUser(ctx, u))

	code, err := flow.SendCode(ctx, u)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "root@example.com", sender.sent[0].To)
	assert.Equal(t, code, sender.lastCode(t))

	_, err = flow.Exchange(ctx, "root", code)
	assert.NoError(t, err)
}
