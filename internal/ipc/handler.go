package ipc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagenode/pagenode-shell/internal/port"
)

// PortResponse is the JSON body of a port query.
type PortResponse struct {
	Port uint16 `json:"port"`
}

// Handler answers port queries from the shared State.
type Handler struct {
	state *port.State
}

// NewHandler creates a Handler reading from state.
func NewHandler(state *port.State) *Handler {
	return &Handler{state: state}
}

// GetBackendPort returns the resolved backend port, or 0 if discovery has
// not resolved it (yet). It never blocks waiting for resolution.
func (h *Handler) GetBackendPort() uint16 {
	return h.state.Get()
}

// BackendPort handles GET /api/backend-port and POST /invoke/get_backend_port.
func (h *Handler) BackendPort(c *gin.Context) {
	c.JSON(http.StatusOK, PortResponse{Port: h.GetBackendPort()})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"resolved": h.state.Resolved(),
	})
}
