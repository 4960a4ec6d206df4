package species

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayush/peces-catalog/internal/models"
	"github.com/ayush/peces-catalog/internal/store"
)

// MaxImageSize is the largest accepted species image.
const MaxImageSize = 5 << 20

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 64 << 10

var allowedImageExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

var (
	errMissingFields = errors.New("nombre_comun, nombre_cientifico y familia son obligatorios")
	errImageType     = errors.New("Formato de imagen no permitido (jpg, jpeg, png, webp)")
	errImageSize     = errors.New("La imagen supera el tamaño máximo de 5 MB")
	errBadBody       = errors.New("Cuerpo de la petición inválido")
	errEnabledField  = errors.New("El campo enabled solo se cambia con PATCH /especies/{id}/enabled")
)

// Store is the species persistence the handler needs.
type Store interface {
	List(ctx context.Context, onlyEnabled bool) ([]models.Species, error)
	Get(ctx context.Context, id string) (*models.Species, error)
	Insert(ctx context.Context, sp *models.Species) (*models.Species, error)
	Update(ctx context.Context, id string, in models.SpeciesInput) (*models.Species, error)
	Delete(ctx context.Context, id string) (*models.Species, error)
}

// ImageStore keeps uploaded images and hands back a URL for each.
type ImageStore interface {
	Save(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Handler holds the species catalog HTTP handlers.
type Handler struct {
	species Store
	images  ImageStore
	log     *zap.Logger
}

func NewHandler(species Store, images ImageStore, log *zap.Logger) *Handler {
	return &Handler{species: species, images: images, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps a store failure onto a response.
func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusNotFound, "Especie no encontrada")
		return
	}
	h.log.Error("species store failure", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Error interno")
}

// List returns enabled species sorted by common name.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// ListAll returns every species, disabled ones included.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, onlyEnabled bool) {
	out, err := h.species.List(r.Context(), onlyEnabled)
	if err != nil {
		h.storeError(w, "list", err)
		return
	}
	if out == nil {
		out = []models.Species{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sp, err := h.species.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// Create stores a new species from a JSON body or a multipart form with an
// optional imagen file.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, img, err := readInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if blank(in.CommonName) || blank(in.ScientificName) || blank(in.Family) {
		writeError(w, http.StatusBadRequest, errMissingFields.Error())
		return
	}

	sp := &models.Species{
		CommonName:         strings.TrimSpace(*in.CommonName),
		ScientificName:     strings.TrimSpace(*in.ScientificName),
		Family:             strings.TrimSpace(*in.Family),
		Diet:               deref(in.Diet),
		ConservationStatus: deref(in.ConservationStatus),
		ImageURL:           deref(in.ImageURL),
		Enabled:            in.Enabled == nil || *in.Enabled,
	}

	if img != nil {
		url, err := h.images.Save(r.Context(), img.name, img.data, img.contentType)
		if err != nil {
			h.log.Error("image upload failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Error interno")
			return
		}
		sp.ImageURL = url
	}

	saved, err := h.species.Insert(r.Context(), sp)
	if err != nil {
		if img != nil {
			h.dropImage(r.Context(), sp.ImageURL)
		}
		h.storeError(w, "insert", err)
		return
	}
	h.log.Info("species created", zap.String("id", saved.ID.Hex()), zap.String("nombre_comun", saved.CommonName))
	writeJSON(w, http.StatusCreated, saved)
}

// Update applies a partial update. A new image replaces the stored one.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, img, err := readInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Enabled != nil {
		writeError(w, http.StatusBadRequest, errEnabledField.Error())
		return
	}
	for _, f := range []*string{in.CommonName, in.ScientificName, in.Family} {
		if f != nil && blank(f) {
			writeError(w, http.StatusBadRequest, errMissingFields.Error())
			return
		}
	}

	var previous string
	if img != nil {
		current, err := h.species.Get(r.Context(), id)
		if err != nil {
			h.storeError(w, "get", err)
			return
		}
		previous = current.ImageURL

		url, err := h.images.Save(r.Context(), img.name, img.data, img.contentType)
		if err != nil {
			h.log.Error("image upload failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Error interno")
			return
		}
		in.ImageURL = &url
	}

	updated, err := h.species.Update(r.Context(), id, in)
	if err != nil {
		if img != nil {
			h.dropImage(r.Context(), *in.ImageURL)
		}
		h.storeError(w, "update", err)
		return
	}
	if previous != "" && previous != updated.ImageURL {
		h.dropImage(r.Context(), previous)
	}
	writeJSON(w, http.StatusOK, updated)
}

// SetEnabled toggles whether a species is shown in the public catalog.
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req models.EnabledRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Falta el campo enabled")
		return
	}
	updated, err := h.species.Update(r.Context(), chi.URLParam(r, "id"), models.SpeciesInput{Enabled: req.Enabled})
	if err != nil {
		h.storeError(w, "set-enabled", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a species and its image.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.species.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, "delete", err)
		return
	}
	if removed.ImageURL != "" {
		h.dropImage(r.Context(), removed.ImageURL)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Especie eliminada"})
}

// dropImage deletes an image that is no longer referenced. Failures only
// leave an orphan behind, so they are logged and otherwise ignored.
func (h *Handler) dropImage(ctx context.Context, url string) {
	if err := h.images.Delete(ctx, url); err != nil {
		h.log.Warn("image delete failed", zap.String("url", url), zap.Error(err))
	}
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

// readInput decodes the request body as JSON or as a multipart form.
func readInput(w http.ResponseWriter, r *http.Request) (models.SpeciesInput, *upload, error) {
	var in models.SpeciesInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, nil, errBadBody
		}
		return in, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImageSize+1<<20)
	if err := r.ParseMultipartForm(MaxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, nil, errImageSize
		}
		return in, nil, errBadBody
	}

	field := func(key string) *string {
		if vs, ok := r.MultipartForm.Value[key]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	in.CommonName = field("nombre_comun")
	in.ScientificName = field("nombre_cientifico")
	in.Family = field("familia")
	in.Diet = field("alimentacion")
	in.ConservationStatus = field("estado_conservacion")
	if v := field("enabled"); v != nil {
		b, err := strconv.ParseBool(*v)
		if err != nil {
			return in, nil, fmt.Errorf("%w: enabled", errBadBody)
		}
		in.Enabled = &b
	}

	file, header, err := r.FormFile("imagen")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, errBadBody
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedImageExt[ext]
	if !ok {
		return in, nil, errImageType
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return in, nil, errBadBody
	}
	if len(data) > MaxImageSize {
		return in, nil, errImageSize
	}
	return in, &upload{name: header.Filename, contentType: contentType, data: data}, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
