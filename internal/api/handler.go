// Package api provides HTTP handlers for the Vecinito API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/elvecinito/vecinito-server/internal/agent"
	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/coalesce"
	"github.com/go-chi/chi/v5"
)

// Spanish error bodies returned to the client.
const (
	msgMissingFields   = "Faltan datos: prompt y userId son requeridos"
	msgInvalidSize     = "Tamaño inválido"
	msgInvalidCount    = "Parámetro count inválido"
	msgConfigLoad      = "No se pudo cargar configuración de %s"
	msgUpstreamFailure = "Error al comunicarse con el modelo"
	msgEmptyResponse   = "No se pudo construir respuesta del modelo"
	msgStillTyping     = "Dame un momento veci, estoy leyendo tus mensajes..."
)

// Handler provides common handler utilities and dependencies.
type Handler struct {
	coord  *agent.Coordinator
	buffer *coalesce.Buffer
	index  *catalog.Index
	picker *catalog.Picker
}

// NewHandler creates a new Handler. buffer may be nil, in which case chat
// requests are answered immediately instead of being coalesced.
func NewHandler(coord *agent.Coordinator, buffer *coalesce.Buffer, index *catalog.Index, picker *catalog.Picker) *Handler {
	return &Handler{
		coord:  coord,
		buffer: buffer,
		index:  index,
		picker: picker,
	}
}

// RegisterRoutes registers the chat and image routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Get("/imagenes", h.ListImages)
	r.Get("/imagenes/{size}", h.ListImagesBySize)
	r.Get("/api/imagenes", h.RandomImages)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
