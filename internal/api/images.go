package api

import (
	"net/http"
	"strconv"

	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/identity"
	"github.com/go-chi/chi/v5"
)

const defaultRandomCount = 3

// ListImages returns every product image across all sizes.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{
		"images": nonNil(h.index.ListAll()),
	})
}

// ListImagesBySize returns the images for one size folder. The size is
// validated before any filesystem access.
func (h *Handler) ListImagesBySize(w http.ResponseWriter, r *http.Request) {
	size, err := catalog.ParseSize(chi.URLParam(r, "size"))
	if err != nil {
		Error(w, http.StatusBadRequest, msgInvalidSize)
		return
	}

	JSON(w, http.StatusOK, map[string][]string{
		"images": nonNil(h.index.ListBySize(size)),
	})
}

// RandomImages returns count random images the anonymous caller has not been
// shown yet. count defaults to 3.
func (h *Handler) RandomImages(w http.ResponseWriter, r *http.Request) {
	count := defaultRandomCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, msgInvalidCount)
			return
		}
		count = n
	}

	userID := identity.UserIDFromContext(r.Context())
	JSON(w, http.StatusOK, map[string][]string{
		"imagenes": nonNil(h.picker.Pick(userID, count)),
	})
}

// nonNil keeps empty image lists encoding as [] instead of null.
func nonNil(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
