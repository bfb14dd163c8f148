package admin_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebleo/checklist/internal/admin"
	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/internal/view"
	_ "github.com/bebleo/checklist/testing"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type memoryUsers struct {
	mu     sync.Mutex
	byID   map[int64]users.User
	nextID int64
}

func (m *memoryUsers) add(u users.User) users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	if u.Status == "" {
		u.Status = users.StatusActive
	}
	m.byID[u.ID] = u
	return u
}

func (m *memoryUsers) get(id int64) users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memoryUsers) FindByID(ctx context.Context, id int64) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			found := u
			return &found, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryUsers) List(ctx context.Context) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []users.User
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryUsers) Create(ctx context.Context, user users.User) (int64, error) {
	return m.add(user).ID, nil
}

func (m *memoryUsers) SetPassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memoryUsers) CountActiveAdmins(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, u := range m.byID {
		if u.IsActiveAdmin() {
			count++
		}
	}
	return count, nil
}

func (m *memoryUsers) WithTx(ctx context.Context, fn func(context.Context, users.TxRepository) error) error {
	return fn(ctx, memoryUsersTx{m})
}

type memoryUsersTx struct{ m *memoryUsers }

func (tx memoryUsersTx) LockUser(ctx context.Context, id int64) (*users.User, error) {
	return tx.m.FindByID(ctx, id)
}

func (tx memoryUsersTx) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return tx.m.FindByEmail(ctx, email)
}

func (tx memoryUsersTx) CountActiveAdmins(ctx context.Context) (int, error) {
	return tx.m.CountActiveAdmins(ctx)
}

func (tx memoryUsersTx) Update(ctx context.Context, user users.User) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	tx.m.byID[user.ID] = user
	return nil
}

type harness struct {
	router  http.Handler
	store   *memoryUsers
	actorID int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	store := &memoryUsers{byID: make(map[int64]users.User)}
	directory := users.NewService(store, plainHasher{})
	h := &harness{store: store}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.actorID != 0 {
				if u, err := store.FindByID(r.Context(), h.actorID); err == nil {
					r = r.WithContext(auth.ContextWithIdentity(r.Context(), auth.Identity{User: u}))
				}
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/admin/users", admin.NewHandler(nil, directory, templates, shared.NewCSRFManager("csrfsecret")).MountRoutes)
	h.router = r
	return h
}

func (h *harness) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func seed(h *harness) (adminUser, regular users.User) {
	adminUser = h.store.add(users.User{Email: "admin@test.local", GivenName: "Ada", IsAdmin: true})
	regular = h.store.add(users.User{Email: "user@test.local", GivenName: "Una"})
	return adminUser, regular
}

func TestAdminAccessControl(t *testing.T) {
	h := newHarness(t)
	adminUser, regular := seed(h)

	res := h.do(t, http.MethodGet, "/admin/users", nil)
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))

	h.actorID = regular.ID
	for _, path := range []string{"/admin/users", "/admin/users/new"} {
		res = h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code, path)
	}
	res = h.do(t, http.MethodGet, "/admin/users/1", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = h.do(t, http.MethodGet, "/admin/users/2", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), `name="status"`)
	res = h.do(t, http.MethodGet, "/admin/users/99", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	h.actorID = adminUser.ID
	res = h.do(t, http.MethodGet, "/admin/users", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "user@test.local")
	res = h.do(t, http.MethodGet, "/admin/users/2", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `name="status"`)
}

func TestAdminAddUser(t *testing.T) {
	h := newHarness(t)
	adminUser, _ := seed(h)
	h.actorID = adminUser.ID

	res := h.do(t, http.MethodPost, "/admin/users/new", url.Values{
		"email":    {"New@Test.local"},
		"password": {"pw"},
		"confirm":  {"pw"},
		"is_admin": {"1"},
	})
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/admin/users", res.Header().Get("Location"))
	created, err := h.store.FindByEmail(context.Background(), "new@test.local")
	require.NoError(t, err)
	assert.True(t, created.IsAdmin)
	assert.Equal(t, "hashed:pw", created.PasswordHash)

	res = h.do(t, http.MethodPost, "/admin/users/new", url.Values{
		"email":    {"USER@test.local"},
		"password": {"pw"},
		"confirm":  {"pw"},
	})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), admin.MsgUsernameExists)
	assert.Contains(t, res.Body.String(), `href="/admin/users/2"`)

	res = h.do(t, http.MethodPost, "/admin/users/new", url.Values{"email": {""}, "password": {"a"}, "confirm": {"b"}})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), users.MsgEmailBlank)
	assert.Contains(t, res.Body.String(), users.MsgPasswordMismatch)
}

func TestAdminEditUser(t *testing.T) {
	h := newHarness(t)
	adminUser, regular := seed(h)
	h.actorID = adminUser.ID

	res := h.do(t, http.MethodPost, "/admin/users/2", url.Values{
		"email":      {"user@test.local"},
		"given_name": {"Renamed"},
		"status":     {"deactivated"},
	})
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/admin/users/2", res.Header().Get("Location"))
	updated := h.store.get(regular.ID)
	assert.Equal(t, "Renamed", updated.GivenName)
	assert.Equal(t, users.StatusDeactivated, updated.Status)

	res = h.do(t, http.MethodPost, "/admin/users/2", url.Values{"email": {""}, "status": {"active"}})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Username must not be blank.")
}

func TestAdminEditRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	adminUser, regular := seed(h)
	h.actorID = adminUser.ID

	res := h.do(t, http.MethodPost, "/admin/users/2", url.Values{
		"email":  {"user@test.local"},
		"status": {"suspended"},
	})

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), users.MsgStatusInvalid)
	assert.Equal(t, users.StatusActive, h.store.get(regular.ID).Status)

	res = h.do(t, http.MethodPost, "/admin/users/2", url.Values{
		"email":  {"user@test.local"},
		"status": {" Deactivated "},
	})
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, users.StatusDeactivated, h.store.get(regular.ID).Status)
}

func TestAdminSelfProtection(t *testing.T) {
	h := newHarness(t)
	adminUser, _ := seed(h)
	h.actorID = adminUser.ID

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{
			name:    "cannot drop own admin flag",
			form:    url.Values{"email": {"admin@test.local"}, "status": {"active"}},
			message: users.MsgSelfDemotion,
		},
		{
			name:    "cannot deactivate self",
			form:    url.Values{"email": {"admin@test.local"}, "is_admin": {"1"}, "status": {"deactivated"}},
			message: users.MsgSelfDeactivation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(t, http.MethodPost, "/admin/users/1", tt.form)

			assert.Equal(t, http.StatusOK, res.Code)
			assert.Contains(t, res.Body.String(), tt.message)
			stored := h.store.get(adminUser.ID)
			assert.True(t, stored.IsAdmin)
			assert.Equal(t, users.StatusActive, stored.Status)
		})
	}
}

func TestNonAdminEditsOnlySelf(t *testing.T) {
	h := newHarness(t)
	_, regular := seed(h)
	h.actorID = regular.ID

	res := h.do(t, http.MethodPost, "/admin/users/2", url.Values{
		"email":    {"user@test.local"},
		"is_admin": {"1"},
		"password": {"newpw"},
		"confirm":  {"newpw"},
	})
	assert.Equal(t, http.StatusFound, res.Code)
	stored := h.store.get(regular.ID)
	assert.False(t, stored.IsAdmin)
	assert.Equal(t, "hashed:newpw", stored.PasswordHash)

	res = h.do(t, http.MethodPost, "/admin/users/1", url.Values{"email": {"admin@test.local"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
