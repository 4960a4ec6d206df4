package species

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ayush/peces-catalog/internal/models"
	"github.com/ayush/peces-catalog/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	data map[primitive.ObjectID]models.Species
	err  error
}

func newMemStore(seed ...models.Species) *memStore {
	m := &memStore{data: map[primitive.ObjectID]models.Species{}}
	for _, sp := range seed {
		if sp.ID.IsZero() {
			sp.ID = primitive.NewObjectID()
		}
		m.data[sp.ID] = sp
	}
	return m
}

func (m *memStore) oid(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, store.ErrInvalidID
	}
	return oid, nil
}

func (m *memStore) List(ctx context.Context, onlyEnabled bool) ([]models.Species, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Species
	for _, sp := range m.data {
		if onlyEnabled && !sp.Enabled {
			continue
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommonName < out[j].CommonName })
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*models.Species, error) {
	oid, err := m.oid(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.data[oid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sp, nil
}

func (m *memStore) Insert(ctx context.Context, sp *models.Species) (*models.Species, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := *sp
	out.ID = primitive.NewObjectID()
	m.data[out.ID] = out
	return &out, nil
}

func (m *memStore) Update(ctx context.Context, id string, in models.SpeciesInput) (*models.Species, error) {
	oid, err := m.oid(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.data[oid]
	if !ok {
		return nil, store.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&sp.CommonName, in.CommonName)
	set(&sp.ScientificName, in.ScientificName)
	set(&sp.Family, in.Family)
	set(&sp.Diet, in.Diet)
	set(&sp.ConservationStatus, in.ConservationStatus)
	set(&sp.ImageURL, in.ImageURL)
	if in.Enabled != nil {
		sp.Enabled = *in.Enabled
	}
	m.data[oid] = sp
	return &sp, nil
}

func (m *memStore) Delete(ctx context.Context, id string) (*models.Species, error) {
	oid, err := m.oid(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.data[oid]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.data, oid)
	return &sp, nil
}

type memImages struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
	n       int
}

func newMemImages() *memImages { return &memImages{saved: map[string][]byte{}} }

func (m *memImages) Save(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	url := "/uploads/img" + string(rune('0'+m.n)) + "-" + filename
	m.saved[url] = data
	return url, nil
}

func (m *memImages) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	delete(m.saved, url)
	return nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/especies", h.List)
	r.Get("/especies/{id}", h.Get)
	r.Get("/api/especies", h.ListAll)
	r.Post("/especies", h.Create)
	r.Put("/especies/{id}", h.Update)
	r.Patch("/especies/{id}/enabled", h.SetEnabled)
	r.Delete("/especies/{id}", h.Delete)
	return r
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fields map[string]string, filename string, image []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("imagen", filename)
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

var (
	paiche    = models.Species{CommonName: "Paiche", ScientificName: "Arapaima gigas", Family: "Arapaimidae", Enabled: true}
	boqui     = models.Species{CommonName: "Boquichico", ScientificName: "Prochilodus nigricans", Family: "Prochilodontidae", Enabled: true}
	carachama = models.Species{CommonName: "Carachama", ScientificName: "Pterygoplichthys pardalis", Family: "Loricariidae", Enabled: false}
)

func TestList_EnabledSortedByCommonName(t *testing.T) {
	h := newRouter(NewHandler(newMemStore(paiche, boqui, carachama), newMemImages(), zap.NewNop()))

	rec := do(t, h, http.MethodGet, "/especies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Boquichico", out[0].CommonName)
	assert.Equal(t, "Paiche", out[1].CommonName)

	rec = do(t, h, http.MethodGet, "/api/especies", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 3)
}

func TestList_EmptyIsArray(t *testing.T) {
	h := newRouter(NewHandler(newMemStore(), newMemImages(), zap.NewNop()))
	rec := do(t, h, http.MethodGet, "/especies", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestList_StoreFailure(t *testing.T) {
	st := newMemStore()
	st.err = errors.New("connection reset")
	h := newRouter(NewHandler(st, newMemImages(), zap.NewNop()))
	rec := do(t, h, http.MethodGet, "/especies", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Error interno"}`, rec.Body.String())
}

func TestGet(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	h := newRouter(NewHandler(newMemStore(sp), newMemImages(), zap.NewNop()))

	rec := do(t, h, http.MethodGet, "/especies/"+sp.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sp, got)

	for _, id := range []string{primitive.NewObjectID().Hex(), "not-an-id"} {
		rec = do(t, h, http.MethodGet, "/especies/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestCreate_JSON(t *testing.T) {
	st := newMemStore()
	h := newRouter(NewHandler(st, newMemImages(), zap.NewNop()))

	body := `{"nombre_comun":" Paiche ","nombre_cientifico":"Arapaima gigas","familia":"Arapaimidae","alimentacion":"Carnívoro"}`
	rec := do(t, h, http.MethodPost, "/especies", "application/json", []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.ID.IsZero())
	assert.Equal(t, "Paiche", got.CommonName)
	assert.Equal(t, "Carnívoro", got.Diet)
	assert.True(t, got.Enabled)
	assert.Len(t, st.data, 1)
}

func TestCreate_Validation(t *testing.T) {
	h := newRouter(NewHandler(newMemStore(), newMemImages(), zap.NewNop()))

	tests := []struct {
		name string
		body string
	}{
		{"missing familia", `{"nombre_comun":"Paiche","nombre_cientifico":"Arapaima gigas"}`},
		{"blank nombre_comun", `{"nombre_comun":"  ","nombre_cientifico":"Arapaima gigas","familia":"Arapaimidae"}`},
		{"not json", `nombre_comun=Paiche`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/especies", "application/json", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreate_MultipartWithImage(t *testing.T) {
	st := newMemStore()
	imgs := newMemImages()
	h := newRouter(NewHandler(st, imgs, zap.NewNop()))

	body, ct := multipartBody(t, map[string]string{
		"nombre_comun":      "Paiche",
		"nombre_cientifico": "Arapaima gigas",
		"familia":           "Arapaimidae",
		"enabled":           "false",
	}, "paiche.PNG", []byte("png-bytes"))
	rec := do(t, h, http.MethodPost, "/especies", ct, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Enabled)
	require.Contains(t, imgs.saved, got.ImageURL)
	assert.Equal(t, []byte("png-bytes"), imgs.saved[got.ImageURL])
}

func TestCreate_RejectsBadImages(t *testing.T) {
	fields := map[string]string{
		"nombre_comun":      "Paiche",
		"nombre_cientifico": "Arapaima gigas",
		"familia":           "Arapaimidae",
	}

	t.Run("extension", func(t *testing.T) {
		imgs := newMemImages()
		h := newRouter(NewHandler(newMemStore(), imgs, zap.NewNop()))
		body, ct := multipartBody(t, fields, "paiche.gif", []byte("gif"))
		rec := do(t, h, http.MethodPost, "/especies", ct, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, imgs.saved)
	})

	t.Run("size", func(t *testing.T) {
		imgs := newMemImages()
		h := newRouter(NewHandler(newMemStore(), imgs, zap.NewNop()))
		body, ct := multipartBody(t, fields, "paiche.jpg", bytes.Repeat([]byte{0xff}, MaxImageSize+1))
		rec := do(t, h, http.MethodPost, "/especies", ct, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, imgs.saved)
	})
}

func TestUpdate_ReplacesImage(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	sp.ImageURL = "/uploads/old.jpg"
	st := newMemStore(sp)
	imgs := newMemImages()
	h := newRouter(NewHandler(st, imgs, zap.NewNop()))

	body, ct := multipartBody(t, map[string]string{"alimentacion": "Piscívoro"}, "new.webp", []byte("webp"))
	rec := do(t, h, http.MethodPut, "/especies/"+sp.ID.Hex(), ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Paiche", got.CommonName)
	assert.Equal(t, "Piscívoro", got.Diet)
	assert.True(t, strings.HasSuffix(got.ImageURL, "new.webp"))
	assert.Equal(t, []string{"/uploads/old.jpg"}, imgs.deleted)
}

func TestUpdate_PartialJSON(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	h := newRouter(NewHandler(newMemStore(sp), newMemImages(), zap.NewNop()))

	rec := do(t, h, http.MethodPut, "/especies/"+sp.ID.Hex(), "application/json", []byte(`{"estado_conservacion":"Vulnerable"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Species
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Vulnerable", got.ConservationStatus)
	assert.Equal(t, "Arapaima gigas", got.ScientificName)

	rec = do(t, h, http.MethodPut, "/especies/"+sp.ID.Hex(), "application/json", []byte(`{"familia":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/especies/"+primitive.NewObjectID().Hex(), "application/json", []byte(`{"familia":"X"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdate_RejectsEnabled(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	st := newMemStore(sp)
	imgs := newMemImages()
	h := newRouter(NewHandler(st, imgs, zap.NewNop()))

	rec := do(t, h, http.MethodPut, "/especies/"+sp.ID.Hex(), "application/json", []byte(`{"enabled":false,"alimentacion":"Piscívoro"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, map[string]string{"enabled": "false"}, "new.png", []byte("png"))
	rec = do(t, h, http.MethodPut, "/especies/"+sp.ID.Hex(), ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.True(t, st.data[sp.ID].Enabled)
	assert.Empty(t, st.data[sp.ID].Diet)
	assert.Empty(t, imgs.saved)
}

func TestJSONBodyIsCapped(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	st := newMemStore(sp)
	h := newRouter(NewHandler(st, newMemImages(), zap.NewNop()))

	pad := strings.Repeat("x", maxJSONBody)
	rec := do(t, h, http.MethodPost, "/especies", "application/json",
		[]byte(`{"nombre_comun":"Paiche","nombre_cientifico":"Arapaima gigas","familia":"Arapaimidae","alimentacion":"`+pad+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, st.data, 1)

	rec = do(t, h, http.MethodPatch, "/especies/"+sp.ID.Hex()+"/enabled", "application/json",
		[]byte(`{"enabled":false,"pad":"`+pad+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, st.data[sp.ID].Enabled)
}

func TestSetEnabled(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	st := newMemStore(sp)
	h := newRouter(NewHandler(st, newMemImages(), zap.NewNop()))

	rec := do(t, h, http.MethodPatch, "/especies/"+sp.ID.Hex()+"/enabled", "application/json", []byte(`{"enabled":false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.data[sp.ID].Enabled)

	rec = do(t, h, http.MethodPatch, "/especies/"+sp.ID.Hex()+"/enabled", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete_RemovesImage(t *testing.T) {
	sp := paiche
	sp.ID = primitive.NewObjectID()
	sp.ImageURL = "/uploads/paiche.jpg"
	st := newMemStore(sp)
	imgs := newMemImages()
	h := newRouter(NewHandler(st, imgs, zap.NewNop()))

	rec := do(t, h, http.MethodDelete, "/especies/"+sp.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.data)
	assert.Equal(t, []string{"/uploads/paiche.jpg"}, imgs.deleted)

	rec = do(t, h, http.MethodDelete, "/especies/"+sp.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
