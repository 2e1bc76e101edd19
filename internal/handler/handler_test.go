package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/park-reservation/internal/config"
	"github.com/iliyamo/park-reservation/internal/handler"
	"github.com/iliyamo/park-reservation/internal/model"
	"github.com/iliyamo/park-reservation/internal/repository/memory"
	"github.com/iliyamo/park-reservation/internal/router"
	"github.com/iliyamo/park-reservation/internal/service"
	"github.com/iliyamo/park-reservation/internal/utils"
)

const secret = "test-secret"

type api struct {
	e     *echo.Echo
	store *memory.Store
}

// newAPI serves the full route table over an in-memory store with the
// park clock fixed at noon on 2025-06-10.
func newAPI(t *testing.T) *api {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	rules := config.DefaultRules()
	rules.Location = loc
	now := func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, loc) }

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.New()
	res := service.NewReservationService(store, rules, nil, log, now)
	tr := service.NewTransferService(store, rules, nil, log, now)

	e := echo.New()
	router.RegisterRoutes(e, map[string]handler.Check{
		"database": func(context.Context) error { return nil },
	})
	router.RegisterAuth(e, handler.NewAuthHandler(store.Accounts(), store.Tokens(), handler.AuthSettings{
		JWTSecret: secret, AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour, BcryptCost: bcrypt.MinCost,
	}, log), secret, nil)
	router.RegisterAvailability(e, handler.NewAvailabilityHandler(res, rules, log, now), nil)
	router.RegisterReservations(e, handler.NewReservationHandler(res, log), handler.NewTransferHandler(tr, log), secret)
	router.RegisterAdmin(e, handler.NewAdminHandler(res, log), secret)
	return &api{e: e, store: store}
}

func (a *api) user(t *testing.T, role string) (uint64, string) {
	t.Helper()
	u := a.store.AddUser(model.User{Email: fmt.Sprintf("%s%d@example.com", strings.ToLower(role), time.Now().UnixNano()), Role: role})
	tok, err := utils.NewAccessToken(secret, u.ID, u.Role, time.Hour, time.Now())
	require.NoError(t, err)
	return u.ID, tok.Token
}

func (a *api) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	assert.Equal(t, true, body["success"])
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "data is %T", body["data"])
	return d
}

func TestRegisterValidation(t *testing.T) {
	a := newAPI(t)
	cases := []struct {
		name  string
		body  string
		field string
		msg   string
	}{
		{"bad json", `{`, "", "Invalid request body"},
		{"missing email", `{"password":"Sup3r!Secret-Pass","firstName":"A","lastName":"B"}`, "email", "Required"},
		{"bad email", `{"email":"nope","password":"Sup3r!Secret-Pass","firstName":"A","lastName":"B"}`, "email", "Invalid email"},
		{"short password", `{"email":"a@b.co","password":"Sh0rt!","firstName":"A","lastName":"B"}`, "password", "Password must be at least 12 characters"},
		{"no uppercase", `{"email":"a@b.co","password":"lowercase-only-1","firstName":"A","lastName":"B"}`, "password", "Password must contain at least one uppercase letter"},
		{"no digit", `{"email":"a@b.co","password":"No-Digits-Here!","firstName":"A","lastName":"B"}`, "password", "Password must contain at least one number"},
		{"no special", `{"email":"a@b.co","password":"NoSpecials1234","firstName":"A","lastName":"B"}`, "password",
			`Password must contain at least one special character (!@#$%^&*(),.?":{}|<>)`},
		{"missing last name", `{"email":"a@b.co","password":"Sup3r!Secret-Pass","firstName":"A"}`, "lastName", "Required"},
		{"bad state", `{"email":"a@b.co","password":"Sup3r!Secret-Pass","firstName":"A","lastName":"B",
			"address":{"street":"1 Main","city":"Austin","state":"Texas","zip":"78701"}}`, "state", "State must be 2 letters"},
		{"bad zip", `{"email":"a@b.co","password":"Sup3r!Secret-Pass","firstName":"A","lastName":"B",
			"address":{"street":"1 Main","city":"Austin","state":"tx","zip":"787"}}`, "zip", "Invalid ZIP code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := a.do(t, http.MethodPost, "/v1/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tc.msg, body["error"])
			if tc.field != "" {
				assert.Equal(t, tc.field, body["field"])
			}
		})
	}
}

func TestRegisterLoginMe(t *testing.T) {
	a := newAPI(t)
	reg := `{"email":"Ranger@Example.com","password":"Sup3r!Secret-Pass","firstName":"Rita","lastName":"Ranger",
		"address":{"street":" 1 Trail Rd ","city":"Bastrop","state":"tx","zip":"78602"}}`

	code, body := a.do(t, http.MethodPost, "/v1/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, code)
	d := data(t, body)
	user := d["user"].(map[string]any)
	assert.Equal(t, "ranger@example.com", user["email"])
	assert.Equal(t, "TX", user["state"])
	assert.Equal(t, "USER", user["role"])
	assert.NotContains(t, user, "passwordHash")

	code, body = a.do(t, http.MethodPost, "/v1/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "email", body["field"])

	code, body = a.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"ranger@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", body["error"])

	code, body = a.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"ranger@example.com","password":"Sup3r!Secret-Pass"}`)
	require.Equal(t, http.StatusOK, code)
	d = data(t, body)
	access := d["access"].(map[string]any)["token"].(string)
	refresh := d["refresh"].(map[string]any)["token"].(string)

	code, body = a.do(t, http.MethodGet, "/v1/me", access, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Rita", data(t, body)["firstName"])

	code, _ = a.do(t, http.MethodGet, "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	// Refresh rotates: the old token stops working.
	code, _ = a.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, code)
	code, body = a.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid refresh token", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/auth/logout", access, "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestUpdateAddress(t *testing.T) {
	a := newAPI(t)
	_, tok := a.user(t, model.RoleUser)

	code, body := a.do(t, http.MethodPut, "/v1/me/address", tok, `{"street":"2 Lake Dr","city":"Austin","state":"TX","zip":"78701-1234"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "78701-1234", data(t, body)["zip"])

	code, body = a.do(t, http.MethodPut, "/v1/me/address", tok, `{"street":"","city":"Austin","state":"TX","zip":"78701"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "street", body["field"])
}

func TestCreateReservation(t *testing.T) {
	a := newAPI(t)
	_, tok := a.user(t, model.RoleUser)
	friend, _ := a.user(t, model.RoleUser)

	code, body := a.do(t, http.MethodPost, "/v1/reservations", tok,
		fmt.Sprintf(`{"reservationDate":"2025-06-12","additionalUsers":[{"userId":%d}]}`, friend))
	require.Equal(t, http.StatusCreated, code)
	d := data(t, body)
	assert.Equal(t, "2025-06-12", d["reservationDate"])
	assert.Equal(t, "ACTIVE", d["status"])
	assert.Len(t, d["users"], 2)
	capacity := d["capacity"].(map[string]any)
	assert.EqualValues(t, 2, capacity["totalBookings"])
	assert.EqualValues(t, 58, capacity["remainingSpots"])

	code, body = a.do(t, http.MethodPost, "/v1/reservations", tok, `{"reservationDate":"2025-06-12"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.MsgAlreadyBookedOnDate, body["error"])

	code, body = a.do(t, http.MethodPost, "/v1/reservations", tok, `{"reservationDate":"2025-06-10"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, service.MsgBookingCutoff, body["error"])

	code, body = a.do(t, http.MethodPost, "/v1/reservations", tok, `{"reservationDate":"06/12/2025"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid date, expected YYYY-MM-DD", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/reservations", "", `{"reservationDate":"2025-06-12"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestReservationAccessAndCancel(t *testing.T) {
	a := newAPI(t)
	_, owner := a.user(t, model.RoleUser)
	_, stranger := a.user(t, model.RoleUser)

	code, body := a.do(t, http.MethodPost, "/v1/reservations", owner, `{"reservationDate":"2025-06-13"}`)
	require.Equal(t, http.StatusCreated, code)
	id := uint64(data(t, body)["id"].(float64))
	path := fmt.Sprintf("/v1/reservations/%d", id)

	code, body = a.do(t, http.MethodGet, path, stranger, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, service.MsgNoAccess, body["error"])

	code, body = a.do(t, http.MethodGet, "/v1/reservations/999", owner, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, service.MsgReservationNotFound, body["error"])

	code, body = a.do(t, http.MethodGet, "/v1/reservations/abc", owner, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid id", body["error"])

	code, body = a.do(t, http.MethodDelete, path, owner, "")
	require.Equal(t, http.StatusOK, code)
	d := data(t, body)
	assert.Equal(t, true, d["wholeReservation"])
	assert.EqualValues(t, 1, d["seatsReleased"])

	code, body = a.do(t, http.MethodDelete, path, owner, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.MsgAlreadyCancelled, body["error"])

	code, body = a.do(t, http.MethodGet, "/v1/availability/2025-06-13", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, data(t, body)["totalBookings"])
}

func TestPartyMembership(t *testing.T) {
	a := newAPI(t)
	_, owner := a.user(t, model.RoleUser)
	guest, guestTok := a.user(t, model.RoleUser)

	code, body := a.do(t, http.MethodPost, "/v1/reservations", owner, `{"reservationDate":"2025-06-14"}`)
	require.Equal(t, http.StatusCreated, code)
	id := uint64(data(t, body)["id"].(float64))

	code, body = a.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/users", id), owner, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "userId", body["field"])

	code, _ = a.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/users", id), owner, fmt.Sprintf(`{"userId":%d}`, guest))
	require.Equal(t, http.StatusCreated, code)

	code, body = a.do(t, http.MethodDelete, fmt.Sprintf("/v1/reservations/%d/users/%d", id, guest), guestTok, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, service.MsgPrimaryOnly, body["error"])

	code, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/v1/reservations/%d/users/%d", id, guest), owner, "")
	assert.Equal(t, http.StatusOK, code)

	code, body = a.do(t, http.MethodGet, "/v1/reservations", guestTok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])
}

func TestTransferAcceptFlow(t *testing.T) {
	a := newAPI(t)
	_, owner := a.user(t, model.RoleUser)
	guest, guestTok := a.user(t, model.RoleUser)
	recipient, recipientTok := a.user(t, model.RoleUser)

	code, body := a.do(t, http.MethodPost, "/v1/reservations", owner,
		fmt.Sprintf(`{"reservationDate":"2025-06-12","additionalUsers":[{"userId":%d}]}`, guest))
	require.Equal(t, http.StatusCreated, code)
	id := uint64(data(t, body)["id"].(float64))

	code, body = a.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/transfers", id), guestTok,
		fmt.Sprintf(`{"toUserId":%d}`, recipient))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "spotsToTransfer", body["field"])

	code, body = a.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%d/transfers", id), guestTok,
		fmt.Sprintf(`{"toUserId":%d,"spotsToTransfer":[%d]}`, recipient, guest))
	require.Equal(t, http.StatusCreated, code)
	d := data(t, body)
	assert.Equal(t, "PENDING", d["status"])
	transferID := uint64(d["id"].(float64))

	code, body = a.do(t, http.MethodGet, "/v1/transfers?direction=incoming", recipientTok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, _ = a.do(t, http.MethodPost, fmt.Sprintf("/v1/transfers/%d/accept", transferID), guestTok, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodPost, fmt.Sprintf("/v1/transfers/%d/accept", transferID), recipientTok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ACCEPTED", data(t, body)["status"])

	code, _ = a.do(t, http.MethodGet, fmt.Sprintf("/v1/reservations/%d", id), recipientTok, "")
	require.Equal(t, http.StatusOK, code)

	code, body = a.do(t, http.MethodGet, "/v1/availability/2025-06-12", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, data(t, body)["totalBookings"])

	code, body = a.do(t, http.MethodGet, "/v1/reservations", guestTok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])
}

func TestAvailabilityRange(t *testing.T) {
	a := newAPI(t)
	cases := []struct {
		query string
		msg   string
	}{
		{"", "Both start and end dates are required"},
		{"start=2025-06-12", "Both start and end dates are required"},
		{"start=2025-06-15&end=2025-06-12", "Start date must be before or equal to end date"},
		{"start=2025-06-12&end=2025-12-31", "Date range cannot exceed 3 months"},
		{"start=2025-06-01&end=2025-06-12", "Start date must not be in the past"},
		{"start=June&end=2025-06-12", "Invalid date, expected YYYY-MM-DD"},
	}
	for _, tc := range cases {
		code, body := a.do(t, http.MethodGet, "/v1/availability?"+tc.query, "", "")
		assert.Equal(t, http.StatusBadRequest, code, tc.query)
		assert.Equal(t, tc.msg, body["error"], tc.query)
	}

	a.store.PutCapacity(model.DateCapacity{Date: time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), TotalBookings: 60, MaxCapacity: 60})
	code, body := a.do(t, http.MethodGet, "/v1/availability?start=2025-06-11&end=2025-06-13", "", "")
	require.Equal(t, http.StatusOK, code)
	d := data(t, body)
	assert.Equal(t, []any{"2025-06-11", "2025-06-13"}, d["availableDates"])
}

func TestAdminRoster(t *testing.T) {
	a := newAPI(t)
	_, userTok := a.user(t, model.RoleUser)
	_, adminTok := a.user(t, model.RoleAdmin)

	code, _ := a.do(t, http.MethodPost, "/v1/reservations", userTok, `{"reservationDate":"2025-06-12"}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(t, http.MethodGet, "/v1/admin/reservations?date=2025-06-12", userTok, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(t, http.MethodGet, "/v1/admin/reservations", adminTok, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "date", body["field"])

	code, body = a.do(t, http.MethodGet, "/v1/admin/reservations?date=2025-06-12", adminTok, "")
	require.Equal(t, http.StatusOK, code)
	d := data(t, body)
	assert.Len(t, d["reservations"], 1)
	assert.EqualValues(t, 59, d["capacity"].(map[string]any)["remainingSpots"])
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", handler.Health(map[string]handler.Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}
