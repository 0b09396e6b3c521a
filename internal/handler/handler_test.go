package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/formdesigner/internal/activity"
	"github.com/matthewbaird/formdesigner/internal/builder"
	"github.com/matthewbaird/formdesigner/internal/event"
	"github.com/matthewbaird/formdesigner/internal/store"
	"github.com/matthewbaird/formdesigner/internal/upload"
	"github.com/matthewbaird/formdesigner/internal/workflow"
)

type testEnv struct {
	router http.Handler
	forms  *store.Service
	feed   *activity.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	feed := activity.NewMemoryStore()
	rec := event.NewActivityRecorder(feed)
	forms := store.NewService(store.NewMemoryStore(), nil)
	u, err := upload.NewDiskUploader(t.TempDir(), "/files", 1024)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(Recovery)
	NewFormHandler(forms, rec, nil).RegisterRoutes(r)
	NewBuilderHandler(builder.NewManager(time.Hour, time.Hour), forms, rec).RegisterRoutes(r)
	NewWorkflowHandler(workflow.NewService(workflow.NewMemoryStore(), u), rec, 1024).RegisterRoutes(r)
	NewFileHandler(u, "/files").RegisterRoutes(r)
	NewActivityHandler(feed).RegisterRoutes(r)
	return &testEnv{router: r, forms: forms, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor", "tester")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

var signupBody = map[string]any{
	"name": "Signup",
	"fields": []any{
		map[string]any{"id": "f1", "type": "input", "name": "email", "label": "Email", "required": true},
	},
}

func (e *testEnv) createForm(t *testing.T) store.StoredForm {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/forms", signupBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[store.StoredForm](t, rr)
}

func TestFormCRUD(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, 1, f.FieldCount())

	list := decode[struct {
		Forms      []store.Summary `json:"forms"`
		TotalCount int             `json:"total_count"`
	}](t, e.do(t, http.MethodGet, "/v1/forms", nil))
	assert.Equal(t, 1, list.TotalCount)
	require.Len(t, list.Forms, 1)
	assert.Equal(t, 1, list.Forms[0].FieldCount)

	dup := map[string]any{"name": "Dup", "fields": []any{
		map[string]any{"type": "input", "name": "email"},
		map[string]any{"type": "email", "name": "email"},
	}}
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/v1/forms/"+f.ID, dup).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/v1/forms", dup).Code)

	rr := e.do(t, http.MethodPut, "/v1/forms/"+f.ID, map[string]any{"name": "Renamed", "fields": []any{}})
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decode[store.StoredForm](t, rr)
	assert.Equal(t, f.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Renamed", updated.Name)

	rr = e.do(t, http.MethodGet, "/v1/forms/"+f.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\n  \"name\": \"Renamed\"")

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/forms/"+f.ID, nil).Code)
	rr = e.do(t, http.MethodGet, "/v1/forms/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decode[map[string]string](t, rr)["code"])
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/forms/"+f.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPut, "/v1/forms/missing", signupBody).Code)
}

func TestFormImport(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"name":"Legacy","fields":[{"type":"input","name":"a"}]}`, http.StatusCreated},
		{"no name", `{"fields":[]}`, http.StatusCreated},
		{"missing fields", `{"name":"x"}`, http.StatusBadRequest},
		{"fields not array", `{"fields":{}}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
		{"accept list", `{"fields":[{"type":"file-input","name":"output_1","accept":["image/",".pdf"]}]}`, http.StatusCreated},
		{"duplicate names", `{"fields":[{"type":"input","name":"a"},[{"type":"input","name":"a"}]]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/forms/import", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			e.router.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}

	list, err := e.forms.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, "Imported Form", list[1].Name)
}

func TestFormViews(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)

	rr := e.do(t, http.MethodGet, "/v1/forms/"+f.ID+"/schema", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"fields":[{"name":"Fields"`)
	assert.NotContains(t, rr.Body.String(), `"items"`)

	ctx := decode[map[string]any](t, e.do(t, http.MethodGet, "/v1/forms/"+f.ID+"/context", nil))
	assert.Equal(t, map[string]any{"email": ""}, ctx["fields"])

	for _, view := range []string{"designer?selected=email", "render"} {
		rr := e.do(t, http.MethodGet, "/v1/forms/"+f.ID+"/"+view, nil)
		require.Equal(t, http.StatusOK, rr.Code, view)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "Email")
	}
	assert.Contains(t, e.do(t, http.MethodGet, "/v1/forms/"+f.ID+"/render", nil).Body.String(),
		`/v1/forms/`+f.ID+`/submit`)
}

func TestSubmitJSON(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)
	path := "/v1/forms/" + f.ID + "/submit"

	rr := e.do(t, http.MethodPost, path, map[string]any{"values": map[string]any{}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errs := decode[struct {
		Errors map[string]string `json:"errors"`
	}](t, rr)
	assert.Contains(t, errs.Errors, "email")

	rr = e.do(t, http.MethodPost, path, map[string]any{"values": map[string]any{"nope": 1}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, path, map[string]any{"values": map[string]any{"email": "a@b.c"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[struct {
		Values map[string]any `json:"values"`
	}](t, rr)
	assert.Equal(t, "a@b.c", out.Values["email"])

	entries, _, _, err := e.feed.QueryByEntity(context.Background(), "form", f.ID, activity.QueryOptions{EventTypes: []string{event.FormSubmitted}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tester", entries[0].Actor)
}

func TestSubmitBrowserPost(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)

	post := func(values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/forms/"+f.ID+"/submit", strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		e.router.ServeHTTP(rr, req)
		return rr
	}

	rr := post(url.Values{"email": {""}, "_action": {"submit"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	rr = post(url.Values{"email": {"a@b.c"}, "_action": {"submit"}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Submitted.")

	rr = post(url.Values{"email": {"a@b.c"}, "_action": {"reset"}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "Submitted.")
}

func TestBuilderSession(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/builder/sessions", map[string]any{"name": "Survey"})
	require.Equal(t, http.StatusCreated, rr.Code)
	st := decode[sessionState](t, rr)
	base := "/v1/builder/sessions/" + st.SessionID
	assert.Equal(t, "Survey", st.Name)
	assert.Empty(t, st.Fields)

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, base+"/fields", map[string]any{"kind": "input"}).Code)
	st = decode[sessionState](t, e.do(t, http.MethodPost, base+"/fields", map[string]any{"kind": "number"}))
	require.Len(t, st.Fields, 2)
	first, second := st.Fields[0].Field, st.Fields[1].Field
	assert.Equal(t, "output_1", first.Name)
	assert.Equal(t, second.ID, st.Selected.ID)
	assert.True(t, st.Dirty)

	rr = e.do(t, http.MethodPost, base+"/fields", map[string]any{"kind": "hologram"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPatch, base+"/fields/"+second.ID, map[string]any{"name": "output_1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	st = decode[sessionState](t, e.do(t, http.MethodPatch, base+"/fields/"+first.ID, map[string]any{"label": "Age"}))
	assert.Equal(t, "Age", st.Fields[0].Field.Label)

	st = decode[sessionState](t, e.do(t, http.MethodPost, base+"/group", map[string]any{"ids": []string{first.ID, second.ID}}))
	require.Len(t, st.Fields, 1)
	assert.True(t, st.Fields[0].IsGroup())

	view := decode[builder.JSONView](t, e.do(t, http.MethodGet, base+"/json", nil))
	require.Len(t, view.Spans, 2)
	st = decode[sessionState](t, e.do(t, http.MethodPost, base+"/select", map[string]any{"line": view.Spans[0].Start}))
	assert.Equal(t, first.ID, st.Selected.ID)

	rr = e.do(t, http.MethodGet, base+"/preview", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Age")

	rr = e.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decode[store.StoredForm](t, rr)
	assert.Equal(t, 2, saved.FieldCount())
	st = decode[sessionState](t, e.do(t, http.MethodGet, base, nil))
	assert.False(t, st.Dirty)
	assert.Equal(t, saved.ID, st.FormID)

	e.do(t, http.MethodPut, base+"/name", map[string]any{"name": "Survey 2"})
	again := decode[store.StoredForm](t, e.do(t, http.MethodPost, base+"/save", nil))
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, "Survey 2", again.Name)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, base, nil).Code)
}

func TestBuilderOpensStoredForm(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)

	st := decode[sessionState](t, e.do(t, http.MethodPost, "/v1/builder/sessions", map[string]any{"formId": f.ID}))
	assert.Equal(t, f.ID, st.FormID)
	assert.Equal(t, "Signup", st.Name)
	require.Len(t, st.Fields, 1)
	assert.False(t, st.Dirty)

	rr := e.do(t, http.MethodPost, "/v1/builder/sessions", map[string]any{"formId": "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func uploadRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	io.WriteString(fw, content)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestWorkflowLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/workflows", map[string]any{"name": "Onboarding", "tags": []string{"hr"}})
	require.Equal(t, http.StatusCreated, rr.Code)
	wf := decode[workflow.Workflow](t, rr)
	base := "/v1/workflows/" + wf.ID

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/v1/workflows", map[string]any{}).Code)

	send := func(name, content string, fields map[string]string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		e.router.ServeHTTP(rr, uploadRequest(t, base+"/versions", name, content, fields))
		return rr
	}

	rr = send("v1.bpmn", "<definitions/>", map[string]string{"label": "first", "active": "true"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = send("v2.XML", "<definitions/>", map[string]string{"author": "ann"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	wf = decode[workflow.Workflow](t, rr)
	require.Len(t, wf.Versions, 2)
	assert.Equal(t, "v2.XML", wf.Versions[0].Label)
	assert.False(t, wf.Versions[0].IsActive)
	assert.True(t, wf.Versions[1].IsActive)

	tests := []struct {
		name, file, content string
		status              int
	}{
		{"wrong extension", "notes.txt", "x", http.StatusBadRequest},
		{"too large", "big.bpmn", strings.Repeat("x", 2048), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := send(tt.file, tt.content, nil); rr.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}

	rr = e.do(t, http.MethodPost, base+"/versions/"+wf.Versions[0].ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	wf = decode[workflow.Workflow](t, rr)
	active, ok := wf.Active()
	require.True(t, ok)
	assert.Equal(t, wf.Versions[0].ID, active.ID)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, base+"/versions/nope/activate", nil).Code)

	rr = e.do(t, http.MethodGet, active.FileURL, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<definitions/>", rr.Body.String())

	wf = decode[workflow.Workflow](t, e.do(t, http.MethodPut, base+"/tags", map[string]any{"tags": []string{"a", "b"}}))
	assert.Equal(t, []string{"a", "b"}, wf.Tags)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, active.FileURL, nil).Code)
}

func TestActivityFeed(t *testing.T) {
	e := newTestEnv(t)
	f := e.createForm(t)
	e.do(t, http.MethodPut, "/v1/forms/"+f.ID, signupBody)

	rr := e.do(t, http.MethodGet, "/v1/activity/form/"+f.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	feed := decode[struct {
		Activities []map[string]any `json:"activities"`
		TotalCount int              `json:"total_count"`
	}](t, rr)
	assert.Equal(t, 2, feed.TotalCount)
	require.Len(t, feed.Activities, 2)

	rr = e.do(t, http.MethodGet, "/v1/activity/form/"+f.ID+"?event_types="+event.FormCreated, nil)
	assert.Equal(t, 1, decode[struct {
		TotalCount int `json:"total_count"`
	}](t, rr).TotalCount)

	rr = e.do(t, http.MethodPost, "/v1/activity/search", map[string]any{"query": "signup"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[struct {
		TotalCount int `json:"total_count"`
	}](t, rr).TotalCount)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/v1/activity/search", map[string]any{}).Code)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", 20, 0},
		{"page_size=5&offset=10", 5, 10},
		{"page_size=500", 100, 0},
		{"page_size=-1&offset=-3", 20, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		p := parsePagination(r)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("parsePagination(%q) = %+v, want limit %d offset %d", tt.query, p, tt.limit, tt.offset)
		}
	}
	assert.Equal(t, []int{3, 4}, page([]int{1, 2, 3, 4}, Pagination{Limit: 5, Offset: 2}))
	assert.Empty(t, page([]int{1}, Pagination{Limit: 5, Offset: 9}))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
