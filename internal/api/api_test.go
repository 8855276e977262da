package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/dsl"
	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/record"
	"recordkit/internal/store"
)

func newTestRouter(t *testing.T, opts ...Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := store.NewMemory()
	fields := field.New(s)
	objects := object.New(s, fields)
	require.NoError(t, objects.EnsureIndexes(context.Background()))
	records := record.New(s, s, fields)
	opts = append([]Option{WithApplier(dsl.NewApplier(objects, fields, zerolog.Nop()), "dsl")}, opts...)
	return NewRouter(NewServer(objects, fields, records, opts...))
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func firstError(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "no errors in %v", body)
	require.NotEmpty(t, errs)
	return errs[0].(map[string]any)
}

func contactFields() []map[string]any {
	return []map[string]any{
		{"name": "Code", "token": "fd_code", "type": "identity", "attrs": map[string]any{"prefix": "CT"}},
		{"name": "Name", "token": "fd_name", "type": "text", "attrs": map[string]any{"max_length": 50}},
		{"name": "Phone", "token": "fd_phone", "type": "phone_number", "attrs": map[string]any{"country_code": "+84"}},
	}
}

func TestContactAndDealFlow(t *testing.T) {
	r := newTestRouter(t)

	w, body := do(t, r, http.MethodPost, "/api/objects", map[string]any{"name": "Contact", "fields": contactFields()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	contactID := body["object"].(map[string]any)["_id"].(string)
	assert.Regexp(t, `^obj_contact_\d{3}$`, contactID)
	assert.Len(t, body["fields"], 3)

	w, rec := do(t, r, http.MethodPost, "/api/objects/Contact/records", map[string]any{"fd_name": "An", "fd_phone": "0901234567"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "CT1", rec["fd_code"])
	assert.Equal(t, "+84901234567", rec["fd_phone"])
	assert.Equal(t, "alice", rec["created_by"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	recID := rec["_id"].(string)

	w, body = do(t, r, http.MethodPost, "/api/objects/Contact/records", map[string]any{"fd_name": "B", "fd_phone": "12345"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	e := firstError(t, body)
	assert.Equal(t, "validation_failed", e["code"])
	assert.Equal(t, "fd_phone", e["field"])

	w, body = do(t, r, http.MethodPost, "/api/objects/Contact/records", map[string]any{"fd_code": "CT9"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "readonly_field", firstError(t, body)["code"])

	w, body = do(t, r, http.MethodPost, "/api/objects/"+contactID+"/fields",
		map[string]any{"name": "Code2", "type": "identity", "attrs": map[string]any{"prefix": "XX"}})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_identity_field", firstError(t, body)["code"])

	w, body = do(t, r, http.MethodPost, "/api/objects", map[string]any{
		"name": "Deal",
		"fields": []map[string]any{
			{"name": "Contact", "token": "fd_contact", "type": "reference_field", "attrs": map[string]any{"target": contactID + ".fd_name"}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, deal := do(t, r, http.MethodPost, "/api/objects/Deal/records", map[string]any{"fd_contact": recID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"ref_to": recID, "field_value": "fd_name"}, deal["fd_contact"])

	w, rec = do(t, r, http.MethodPut, "/api/objects/Contact/records/"+recID, map[string]any{"fd_name": "Anh", "fd_phone": "0901234567"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CT1", rec["fd_code"])
	assert.Equal(t, "alice", rec["modified_by"])

	w, body = do(t, r, http.MethodGet, "/api/objects/Deal/records/"+deal["_id"].(string)+"/deref/fd_contact", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Anh", body["value"])

	w, body = do(t, r, http.MethodDelete, "/api/objects/Contact", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "schema_conflict", firstError(t, body)["code"])

	w, body = do(t, r, http.MethodGet, "/api/objects/Contact/records/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestListRecords(t *testing.T) {
	r := newTestRouter(t)
	w, _ := do(t, r, http.MethodPost, "/api/objects", map[string]any{"name": "Contact", "fields": contactFields()})
	require.Equal(t, http.StatusCreated, w.Code)
	for _, n := range []string{"Cuong", "An", "Binh"} {
		w, _ := do(t, r, http.MethodPost, "/api/objects/contact/records", map[string]any{"fd_name": n})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/objects/Contact/records?sort=fd_name&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "An", list[0]["fd_name"])
	assert.Equal(t, "Binh", list[1]["fd_name"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/objects/Contact/records?fd_code=CT3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Binh", list[0]["fd_name"])

	w, body := do(t, r, http.MethodGet, "/api/objects/Contact/records?fd_nope=1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_field", firstError(t, body)["code"])
}

func TestErrors(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown object", http.MethodGet, "/api/objects/Nope/records", nil, http.StatusNotFound, "object_not_found"},
		{"bad field type", http.MethodPost, "/api/objects", map[string]any{"name": "X", "fields": []map[string]any{{"name": "a", "type": "money"}}}, http.StatusBadRequest, "invalid_field_spec"},
		{"empty name", http.MethodPost, "/api/objects", map[string]any{"name": " "}, http.StatusBadRequest, "validation_failed"},
		{"move without index", http.MethodPatch, "/api/objects/Nope", map[string]any{}, http.StatusBadRequest, "validation_failed"},
		{"bad sweep age", http.MethodPost, "/api/admin/sweep", map[string]any{"older_than": "soon"}, http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, firstError(t, body)["code"])
		})
	}
}

func TestObjectsAndSweep(t *testing.T) {
	r := newTestRouter(t)
	for _, n := range []string{"Contact", "Deal"} {
		w, _ := do(t, r, http.MethodPost, "/api/objects", map[string]any{"name": n, "group_id": "crm"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, body := do(t, r, http.MethodPatch, "/api/objects/Deal", map[string]any{"sort_index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, body["sort_index"])
	assert.Equal(t, "alice", body["modified_by"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/objects?group=crm", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var objs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &objs))
	assert.Len(t, objs, 2)

	w, body = do(t, r, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["removed"])

	w, _ = do(t, r, http.MethodDelete, "/api/objects/Contact", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/objects/Contact", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyEndpoint(t *testing.T) {
	r := newTestRouter(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm.dsl"), []byte(`
object Contact:
  code: identity prefix=CT
  name: text max=50
`), 0o644))

	w, body := do(t, r, http.MethodPost, "/api/admin/apply", map[string]any{"dsl_root": dir})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["created"], 1)
	assert.EqualValues(t, 2, body["fields"])

	w, rec := do(t, r, http.MethodPost, "/api/objects/Contact/records", map[string]any{"fd_name": "An"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "CT1", rec["fd_code"])
}
