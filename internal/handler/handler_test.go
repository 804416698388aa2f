package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectoria/course-coupons/internal/domain/coupon"
	"github.com/lectoria/course-coupons/internal/domain/lesson"
	"github.com/lectoria/course-coupons/internal/domain/redemption"
)

// --- Mock implementations ---

type mockCatalog struct {
	coupons []coupon.Coupon
	err     error
}

func (m *mockCatalog) List(_ context.Context) ([]coupon.Coupon, error) {
	return m.coupons, m.err
}

type mockLedger struct {
	balances  []coupon.Balance
	balance   int
	redeemErr error
}

func (m *mockLedger) Balances(_ context.Context, _ int64) ([]coupon.Balance, error) {
	return m.balances, nil
}

func (m *mockLedger) Balance(_ context.Context, _, _ int64) (int, error) {
	return m.balance, nil
}

func (m *mockLedger) Redeem(_ context.Context, _, _, _, _ int64) error {
	return m.redeemErr
}

type mockLessonRepo struct {
	byID    map[int64]*lesson.Lesson
	courses map[int64]int64
}

func (m *mockLessonRepo) Find(_ context.Context, id int64) (*lesson.Lesson, error) {
	l, ok := m.byID[id]
	if !ok {
		return nil, lesson.ErrNotFound
	}
	return l, nil
}

func (m *mockLessonRepo) CourseID(_ context.Context, lessonID int64) (int64, error) {
	courseID, ok := m.courses[lessonID]
	if !ok {
		return 0, lesson.ErrNoCourse
	}
	return courseID, nil
}

type mockReconciler struct{}

func (mockReconciler) Reconcile(_ context.Context, _ int64) ([]redemption.OrderResult, error) {
	return nil, nil
}

type mockTokens struct {
	userByHash map[string]int64
}

func (m *mockTokens) UserByHash(_ context.Context, hash string) (int64, error) {
	id, ok := m.userByHash[hash]
	if !ok {
		return 0, errors.New("token not found")
	}
	return id, nil
}

// --- Helpers ---

const testPepper = "test-pepper"

func newTestMux(catalog *mockCatalog, ledger *mockLedger, lessons *mockLessonRepo, tokens *mockTokens) *http.ServeMux {
	if lessons == nil {
		lessons = &mockLessonRepo{}
	}
	if tokens == nil {
		tokens = &mockTokens{}
	}
	svc := redemption.NewService(mockReconciler{}, ledger, lessons)
	h := NewHandler(catalog, svc, tokens, []byte(testPepper))

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func tokenFor(t *testing.T, tokens *mockTokens, userID int64, token string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(token))
	if tokens.userByHash == nil {
		tokens.userByHash = make(map[string]int64)
	}
	tokens.userByHash[hex.EncodeToString(mac.Sum(nil))] = userID
	return token
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

// --- Tests ---

func TestListCoupons(t *testing.T) {
	catalog := &mockCatalog{coupons: []coupon.Coupon{
		{
			ID:   1,
			Name: "Coupon 1",
			Type: "group",
			Tiers: []coupon.PriceTier{
				{Limit: 4, Price: decimal.RequireFromString("28.00")},
				{Limit: 8, Price: decimal.RequireFromString("22.00")},
			},
		},
	}}
	mux := newTestMux(catalog, &mockLedger{}, nil, nil)

	rec, env := doRequest(t, mux, http.MethodGet, "/api/coupons", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var data []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		Limits []struct {
			Limit int             `json:"limit"`
			Price decimal.Decimal `json:"price"`
		} `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data, 1)
	assert.Equal(t, int64(1), data[0].ID)
	assert.Equal(t, "Coupon 1", data[0].Name)
	assert.Equal(t, "group", data[0].Type)
	require.Len(t, data[0].Limits, 2)
	assert.Equal(t, 8, data[0].Limits[1].Limit)
	assert.True(t, decimal.RequireFromString("22.00").Equal(data[0].Limits[1].Price))
}

func TestListCoupons_Error(t *testing.T) {
	mux := newTestMux(&mockCatalog{err: errors.New("db down")}, &mockLedger{}, nil, nil)

	rec, env := doRequest(t, mux, http.MethodGet, "/api/coupons", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"internal server error"}, env.Errors["server"])
}

func TestUserCoupons(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 42, "user-42-token")
	ledger := &mockLedger{balances: []coupon.Balance{
		{CouponID: 1, Name: "Coupon 1", Type: "group", Count: 5},
		{CouponID: 2, Name: "Coupon 2", Type: "individual", Count: 0},
	}}
	mux := newTestMux(&mockCatalog{}, ledger, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodGet, "/api/user/coupons", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var data []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data, 2)
	assert.Equal(t, 5, data[0].Count)
	assert.Equal(t, 0, data[1].Count)
}

func TestUserCoupons_NoToken(t *testing.T) {
	mux := newTestMux(&mockCatalog{}, &mockLedger{}, nil, nil)

	rec, env := doRequest(t, mux, http.MethodGet, "/api/user/coupons", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"unauthorized"}, env.Errors["token"])
}

func TestUserCoupons_UnknownToken(t *testing.T) {
	mux := newTestMux(&mockCatalog{}, &mockLedger{}, nil, &mockTokens{})

	rec, env := doRequest(t, mux, http.MethodGet, "/api/user/coupons", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"unauthorized"}, env.Errors["token"])
}

func TestApplyCoupon_Success(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	lessons := &mockLessonRepo{
		byID:    map[int64]*lesson.Lesson{101: {ID: 101, Title: "Intro"}},
		courses: map[int64]int64{101: 11},
	}
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, lessons, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":1,"lesson_id":101}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Empty(t, env.Errors)
}

func TestApplyCoupon_MissingFields(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"coupon_id is required"}, env.Errors["coupon_id"])
	assert.Equal(t, []string{"lesson_id is required"}, env.Errors["lesson_id"])
}

func TestApplyCoupon_NonIntegerField(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":"one","lesson_id":101}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"coupon_id must be an integer"}, env.Errors["coupon_id"])
}

func TestApplyCoupon_MalformedBody(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token, `[1,2]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"request body must be a JSON object"}, env.Errors["body"])
}

func TestApplyCoupon_NoBalance(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 0}, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":1,"lesson_id":101}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{coupon.ErrNoBalance.Error()}, env.Errors["coupon_id"])
}

func TestApplyCoupon_LessonNotFound(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, nil, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":1,"lesson_id":999}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{lesson.ErrNotFound.Error()}, env.Errors["lesson_id"])
}

func TestApplyCoupon_LessonWithoutCourse(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	lessons := &mockLessonRepo{byID: map[int64]*lesson.Lesson{101: {ID: 101}}}
	mux := newTestMux(&mockCatalog{}, &mockLedger{balance: 3}, lessons, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":1,"lesson_id":101}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{lesson.ErrNoCourse.Error()}, env.Errors["course"])
}

func TestApplyCoupon_AlreadyGranted(t *testing.T) {
	tokens := &mockTokens{}
	token := tokenFor(t, tokens, 1, "user-1-token")
	lessons := &mockLessonRepo{
		byID:    map[int64]*lesson.Lesson{101: {ID: 101}},
		courses: map[int64]int64{101: 11},
	}
	ledger := &mockLedger{balance: 3, redeemErr: coupon.ErrAlreadyGranted}
	mux := newTestMux(&mockCatalog{}, ledger, lessons, tokens)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", token,
		`{"coupon_id":1,"lesson_id":101}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{coupon.ErrAlreadyGranted.Error()}, env.Errors["lesson_id"])
}

func TestApplyCoupon_NoToken(t *testing.T) {
	mux := newTestMux(&mockCatalog{}, &mockLedger{}, nil, nil)

	rec, env := doRequest(t, mux, http.MethodPost, "/api/coupons/apply", "",
		`{"coupon_id":1,"lesson_id":101}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"unauthorized"}, env.Errors["token"])
}
