package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type issuerMock struct {
	mock.Mock
}

func (m *issuerMock) ObtainToken(ctx context.Context, email, password string) (backend.TokenPair, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(backend.TokenPair), args.Error(1)
}

func (m *issuerMock) RefreshToken(ctx context.Context, refresh string) (backend.TokenPair, error) {
	args := m.Called(ctx, refresh)
	return args.Get(0).(backend.TokenPair), args.Error(1)
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []bool
	last   Credentials
}

func (r *recorder) listen(c Credentials, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ok)
	r.last = c
}

func TestLogin_ReadsExpiryAndNotifies(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signed(t, jwt.MapClaims{"exp": exp.Unix(), "user_id": 5})

	is := &issuerMock{}
	is.On("ObtainToken", mock.Anything, "c@example.com", "pw").
		Return(backend.TokenPair{Access: access, Refresh: "R"}, nil).Once()

	m := New(is)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	c, err := m.Login(context.Background(), "c@example.com", "pw")
	require.NoError(t, err)
	require.True(t, exp.Equal(c.ExpiresAt))
	require.Equal(t, "c@example.com", c.Email)
	require.Equal(t, []bool{true}, rec.events)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, access, tok)
	is.AssertExpectations(t)
}

func TestLogin_Validation(t *testing.T) {
	m := New(&issuerMock{})
	_, err := m.Login(context.Background(), "", "pw")
	require.Error(t, err)
}

func TestAccessToken_RefreshesExpired(t *testing.T) {
	old := signed(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
	fresh := signed(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	is := &issuerMock{}
	is.On("RefreshToken", mock.Anything, "R1").Return(backend.TokenPair{Access: fresh}, nil).Once()

	m := New(is)
	_, err := m.Adopt(old, "R1")
	require.NoError(t, err)

	rec := &recorder{}
	m.Subscribe(rec.listen)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, tok)
	require.Equal(t, []bool{true}, rec.events)
	// refresh token не ротировался, остаётся старый
	require.Equal(t, "R1", rec.last.RefreshToken)

	// второй вызов уже без обращения к бэкенду
	tok, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, tok)
	is.AssertExpectations(t)
}

func TestAccessToken_RefreshFailureEndsSession(t *testing.T) {
	old := signed(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})

	is := &issuerMock{}
	is.On("RefreshToken", mock.Anything, "R1").Return(backend.TokenPair{}, errors.New("401")).Once()

	m := New(is)
	_, err := m.Adopt(old, "R1")
	require.NoError(t, err)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	_, err = m.AccessToken(context.Background())
	require.ErrorIs(t, err, backend.ErrUnauthorized)
	require.Equal(t, []bool{false}, rec.events)

	_, ok := m.Current()
	require.False(t, ok)

	// не ретраим молча
	_, err = m.AccessToken(context.Background())
	require.ErrorIs(t, err, backend.ErrUnauthorized)
	is.AssertExpectations(t)
}

func TestAccessToken_NoExpNeverRefreshes(t *testing.T) {
	m := New(&issuerMock{})
	_, err := m.Adopt("opaque-token", "")
	require.NoError(t, err)
	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "opaque-token", tok)
}

func TestAdopt_ReadsSubject(t *testing.T) {
	m := New(&issuerMock{})
	c, err := m.Adopt(signed(t, jwt.MapClaims{"email": "c@example.com", "user_id": 42}), "")
	require.NoError(t, err)
	require.Equal(t, "c@example.com", c.Email)
	require.Equal(t, "42", c.UserID)
}

func TestLogoutAndUnsubscribe(t *testing.T) {
	m := New(&issuerMock{})
	rec := &recorder{}
	unsub := m.Subscribe(rec.listen)
	_, err := m.Adopt("tok", "")
	require.NoError(t, err)
	m.Logout()
	require.Equal(t, []bool{true, false}, rec.events)

	unsub()
	_, _ = m.Adopt("tok2", "")
	require.Len(t, rec.events, 2)

	m2 := New(&issuerMock{})
	_, err = m2.AccessToken(context.Background())
	require.ErrorIs(t, err, backend.ErrUnauthorized)
}
