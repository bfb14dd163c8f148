package checklists

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/internal/view"
	_ "github.com/bebleo/checklist/testing"
)

type handlerHarness struct {
	router http.Handler
	repo   *memoryRepo
	user   *users.User
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	repo := newMemoryRepo()
	h := &handlerHarness{repo: repo}
	handler := NewHandler(nil, NewService(repo, nil), templates, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.user != nil {
				r = r.WithContext(auth.ContextWithIdentity(r.Context(), auth.Identity{User: h.user}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/checklist", handler.MountRoutes)
	h.router = r
	return h
}

func (h *handlerHarness) signIn(id int64, name string) {
	h.user = &users.User{ID: id, Email: strings.ToLower(name) + "@test.local", GivenName: name, Status: users.StatusActive}
}

func (h *handlerHarness) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
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

func (h *handlerHarness) create(t *testing.T, title string) string {
	t.Helper()
	res := h.do(t, http.MethodPost, "/checklist/create", url.Values{"list_title": {title}, "list_description": {"desc"}})
	require.Equal(t, http.StatusFound, res.Code)
	return res.Header().Get("Location")
}

func TestChecklistRoutesRequireLogin(t *testing.T) {
	h := newHandlerHarness(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/checklist"},
		{http.MethodGet, "/checklist/"},
		{http.MethodGet, "/checklist/create"},
		{http.MethodGet, "/checklist/edit/1"},
		{http.MethodGet, "/checklist/1/check/1"},
		{http.MethodGet, "/checklist/1/add"},
		{http.MethodPost, "/checklist/create"},
		{http.MethodPost, "/checklist/edit/1"},
		{http.MethodPost, "/checklist/1/add"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			res := h.do(t, p.method, p.path, url.Values{})
			assert.Equal(t, http.StatusFound, res.Code)
			assert.Equal(t, "/auth/login", res.Header().Get("Location"))
		})
	}
}

func TestChecklistDeactivatedUserRedirected(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")
	h.user.Status = users.StatusDeactivated

	res := h.do(t, http.MethodGet, "/checklist", nil)

	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/auth/disabled", res.Header().Get("Location"))
}

func TestChecklistCreateAndView(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")

	location := h.create(t, "List no. 3")
	assert.Equal(t, "/checklist/1", location)

	res := h.do(t, http.MethodGet, "/checklist", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Checklists")
	assert.Contains(t, res.Body.String(), "List no. 3")

	for _, text := range []string{"milk", "eggs", "bread"} {
		res = h.do(t, http.MethodPost, location+"/add", url.Values{"item_text": {text}})
		require.Equal(t, http.StatusFound, res.Code)
		assert.Equal(t, location, res.Header().Get("Location"))
	}
	h.do(t, http.MethodGet, location+"/check/1", nil)
	h.do(t, http.MethodGet, location+"/check/2", nil)

	res = h.do(t, http.MethodGet, location, nil)
	assert.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "67% complete")
	assert.Contains(t, body, "Alice marked eggs as done.")
}

func TestChecklistValidationMessages(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")

	res := h.do(t, http.MethodPost, "/checklist/create", url.Values{"list_title": {""}})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), MsgTitleRequired)

	location := h.create(t, "Errands")
	res = h.do(t, http.MethodPost, location+"/add", url.Values{"item_text": {""}})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), MsgItemTextRequired)

	res = h.do(t, http.MethodPost, "/checklist/edit/1", url.Values{"list_title": {"   "}})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), MsgTitleRequired)
}

func TestChecklistEdit(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")
	location := h.create(t, "Draft")

	res := h.do(t, http.MethodGet, "/checklist/edit/1", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `value="Draft"`)

	res = h.do(t, http.MethodPost, "/checklist/edit/1", url.Values{"list_title": {"Edited List"}, "list_description": {"Edited description."}})
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, location, res.Header().Get("Location"))
	assert.Equal(t, []string{
		`Alice created the list called "Draft".`,
		`Alice updated the title from "Draft" to "Edited List".`,
		`Alice updated the description from "desc" to "Edited description.".`,
	}, h.repo.historyFor(1))
}

func TestChecklistDelete(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")
	h.create(t, "Doomed")

	res := h.do(t, http.MethodGet, "/checklist/delete/1", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `name="confirm_delete"`)

	res = h.do(t, http.MethodPost, "/checklist/delete/1", url.Values{})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(t, http.MethodPost, "/checklist/delete/1", url.Values{"confirm_delete": {"1"}})
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/checklist", res.Header().Get("Location"))

	res = h.do(t, http.MethodGet, "/checklist/1", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	history := h.repo.historyFor(1)
	assert.Contains(t, history[len(history)-1], "deleted")
}

func TestChecklistOtherUsersGetNotFound(t *testing.T) {
	h := newHandlerHarness(t)
	h.signIn(1, "Alice")
	h.create(t, "Mine")
	h.signIn(2, "Bob")

	for _, path := range []string{"/checklist/1", "/checklist/edit/1", "/checklist/1/check/all", "/checklist/99"} {
		res := h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, res.Code, path)
	}
	res := h.do(t, http.MethodGet, "/checklist/1/delete/1", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
