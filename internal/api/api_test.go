package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
	"github.com/starford/postcards/internal/postcards"
	"github.com/starford/postcards/internal/testutil"
	"github.com/starford/postcards/internal/verses"
)

type stubLookup struct {
	calls int
	res   *models.VerseLookupResult
	err   error
}

func (s *stubLookup) Lookup(_ context.Context, reference string) (*models.VerseLookupResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if reference == "" {
		return nil, verses.ErrInvalidReference
	}
	return s.res, nil
}

// testEnv wires a temp SQLite store, the postcard service, and the router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string, lookup VerseLookup) http.Handler {
	t.Helper()
	clock := testutil.StepClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC), time.Second)
	svc := postcards.NewService(testutil.TestStore(t), postcards.WithClock(clock))
	if lookup == nil {
		lookup = &stubLookup{}
	}
	return NewRouter(svc, lookup, authToken != "", authToken, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createPostcard(t *testing.T, h http.Handler, body map[string]any) Postcard {
	t.Helper()
	w := do(t, h, http.MethodPost, "/postcards", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[Postcard](t, w)
}

func TestCreateAndList(t *testing.T) {
	router := testEnv(t, "", nil)

	p := createPostcard(t, router, map[string]any{
		"reference":  " John 3:16 ",
		"text":       "For God so loved the world",
		"tags":       []string{"love", "love"},
		"commentary": "classic",
	})
	if p.ID == "" || p.Reference != "John 3:16" {
		t.Errorf("created = %+v", p)
	}
	if !p.CreatedAt.Equal(p.UpdatedAt) {
		t.Errorf("createdAt != updatedAt")
	}
	if len(p.Tags) != 2 {
		t.Errorf("tags = %v, duplicates must be kept", p.Tags)
	}

	w := do(t, router, http.MethodGet, "/postcards", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[[]Postcard](t, w)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateResponseShape(t *testing.T) {
	router := testEnv(t, "", nil)
	w := do(t, router, http.MethodPost, "/postcards", map[string]any{"reference": "a", "text": "b"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	raw := decode[map[string]any](t, w)
	for _, key := range []string{"id", "reference", "text", "tags", "commentary", "personalThoughts", "questions", "createdAt", "updatedAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q: %v", key, raw)
		}
	}
	if raw["commentary"] != nil {
		t.Errorf("commentary = %v, want null", raw["commentary"])
	}
	if tags, ok := raw["tags"].([]any); !ok || len(tags) != 0 {
		t.Errorf("tags = %v, want []", raw["tags"])
	}
}

func TestListEmptyIsArray(t *testing.T) {
	router := testEnv(t, "", nil)
	w := do(t, router, http.MethodGet, "/postcards", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	router := testEnv(t, "", nil)

	for _, body := range []map[string]any{
		{"reference": "", "text": "x"},
		{"reference": "John 1:1", "text": "   "},
		{"text": "missing reference"},
	} {
		w := do(t, router, http.MethodPost, "/postcards", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %v = %d, want 400", body, w.Code)
		}
		if got := decode[errResponse](t, w); got.Error != "reference and text are required" {
			t.Errorf("error = %q", got.Error)
		}
	}

	w := do(t, router, http.MethodPost, "/postcards", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", w.Code)
	}

	list := decode[[]Postcard](t, do(t, router, http.MethodGet, "/postcards", nil))
	if len(list) != 0 {
		t.Errorf("failed creates wrote %d records", len(list))
	}
}

func TestCreateNonListTagsDefaultEmpty(t *testing.T) {
	router := testEnv(t, "", nil)
	p := createPostcard(t, router, map[string]any{"reference": "a", "text": "b", "tags": "not-a-list"})
	if p.Tags == nil || len(p.Tags) != 0 {
		t.Errorf("tags = %#v, want empty", p.Tags)
	}
}

func TestUpdateReplacesAllFields(t *testing.T) {
	router := testEnv(t, "", nil)
	p := createPostcard(t, router, map[string]any{
		"reference":        "John 3:16",
		"text":             "v1",
		"tags":             []string{"a"},
		"commentary":       "c",
		"personalThoughts": "p",
		"questions":        "q",
	})

	w := do(t, router, http.MethodPut, "/postcards/"+p.ID, map[string]any{
		"reference": "John 3:17",
		"text":      "v2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	upd := decode[Postcard](t, w)
	if upd.ID != p.ID || !upd.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("identity changed: %+v", upd)
	}
	if !upd.UpdatedAt.After(p.UpdatedAt) {
		t.Errorf("updatedAt not refreshed")
	}
	if upd.Text != "v2" || len(upd.Tags) != 0 || upd.Commentary != nil || upd.PersonalThoughts != nil || upd.Questions != nil {
		t.Errorf("fields not replaced: %+v", upd)
	}

	got := decode[Postcard](t, do(t, router, http.MethodGet, "/postcards/"+p.ID, nil))
	if got.Reference != "John 3:17" || got.Commentary != nil {
		t.Errorf("stored = %+v", got)
	}
}

func TestUpdateErrors(t *testing.T) {
	router := testEnv(t, "", nil)
	p := createPostcard(t, router, map[string]any{"reference": "a", "text": "b"})

	w := do(t, router, http.MethodPut, "/postcards/"+p.ID, map[string]any{"reference": "a", "text": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank text = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPut, "/postcards/does-not-exist", map[string]any{"reference": "a", "text": "b"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
	if decode[errResponse](t, w).Error == "" {
		t.Errorf("missing error message")
	}
}

func TestDeletePostcard(t *testing.T) {
	router := testEnv(t, "", nil)
	a := createPostcard(t, router, map[string]any{"reference": "a", "text": "1"})
	b := createPostcard(t, router, map[string]any{"reference": "b", "text": "2"})
	c := createPostcard(t, router, map[string]any{"reference": "c", "text": "3"})

	w := do(t, router, http.MethodDelete, "/postcards/"+b.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if !decode[OKResponse](t, w).OK {
		t.Errorf("body = %s, want ok:true", w.Body.String())
	}

	w = do(t, router, http.MethodDelete, "/postcards/"+b.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}

	list := decode[[]Postcard](t, do(t, router, http.MethodGet, "/postcards", nil))
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != a.ID {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestGetPostcardNotFound(t *testing.T) {
	router := testEnv(t, "", nil)
	w := do(t, router, http.MethodGet, "/postcards/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get unknown = %d, want 404", w.Code)
	}
}

func TestLookupVerse(t *testing.T) {
	lookup := &stubLookup{res: &models.VerseLookupResult{Reference: "John 3:16", Text: "For God so loved...", Translation: "WEB"}}
	router := testEnv(t, "", lookup)

	for _, path := range []string{"/verses/lookup", "/verses/fetch"} {
		w := do(t, router, http.MethodPost, path, map[string]any{"reference": "John 3:16"})
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, w.Code)
		}
		if got := decode[VerseLookupResult](t, w); got != *lookup.res {
			t.Errorf("%s result = %+v", path, got)
		}
	}
}

func TestLookupVerseInvalidReference(t *testing.T) {
	lookup := &stubLookup{}
	router := testEnv(t, "", lookup)

	for _, body := range []any{
		map[string]any{},
		map[string]any{"reference": 42},
		map[string]any{"reference": ""},
	} {
		w := do(t, router, http.MethodPost, "/verses/lookup", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("lookup %v = %d, want 400", body, w.Code)
		}
		if decode[errResponse](t, w).Error != "Missing or invalid verse reference" {
			t.Errorf("error = %s", w.Body.String())
		}
	}
}

func TestLookupVerseUpstreamFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&apperr.UpstreamError{Status: http.StatusNotFound, Err: errors.New("Not Found")}, http.StatusNotFound},
		{&apperr.UpstreamError{Status: http.StatusServiceUnavailable, Err: errors.New("down")}, http.StatusServiceUnavailable},
		{&apperr.UpstreamError{Err: errors.New("dial tcp: refused")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := testEnv(t, "", &stubLookup{err: tc.err})
		w := do(t, router, http.MethodPost, "/verses/lookup", map[string]any{"reference": "John 1:1"})
		if w.Code != tc.status {
			t.Errorf("err %v -> %d, want %d", tc.err, w.Code, tc.status)
		}
		if decode[errResponse](t, w).Error == "" {
			t.Errorf("missing error message for %v", tc.err)
		}
	}
}

func TestLookupVerseAgainstStubUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reference":"John 3:16","translation_id":"web","verses":[]}`))
	}))
	t.Cleanup(upstream.Close)

	router := testEnv(t, "", verses.NewClient(verses.WithBaseURL(upstream.URL)))
	w := do(t, router, http.MethodPost, "/verses/lookup", map[string]any{"reference": "John 3:16"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[VerseLookupResult](t, w)
	if got.Text != "No verse text found." || got.Translation != "WEB" {
		t.Errorf("result = %+v", got)
	}
}

func TestAuthTokenMode(t *testing.T) {
	router := testEnv(t, "secret", nil)

	w := do(t, router, http.MethodGet, "/postcards", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/postcards", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}

func TestAuthTokenSources(t *testing.T) {
	router := testEnv(t, "secret", nil)

	cases := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"wrong token", http.MethodGet, "/postcards", "Bearer nope", http.StatusUnauthorized},
		{"lowercase scheme", http.MethodGet, "/postcards", "bearer secret", http.StatusOK},
		{"basic scheme", http.MethodGet, "/postcards", "Basic secret", http.StatusUnauthorized},
		{"query token on GET", http.MethodGet, "/postcards?access_token=secret", "", http.StatusOK},
		{"query token on POST", http.MethodPost, "/postcards?access_token=secret", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(`{"reference":"a","text":"b"}`))
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
