package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slinky-software/devicevault/internal/plugins"
)

// PluginHandler lists the collection plugins linked into this build
type PluginHandler struct {
	registry *plugins.Registry
}

// NewPluginHandler creates a plugin handler
func NewPluginHandler(registry *plugins.Registry) *PluginHandler {
	return &PluginHandler{registry: registry}
}

// ListPlugins returns all registered collection plugins
// GET /api/v1/plugins
func (h *PluginHandler) ListPlugins(c *gin.Context) {
	list := h.registry.List()

	out := make([]gin.H, 0, len(list))
	for _, p := range list {
		out = append(out, gin.H{
			"key":           p.Key,
			"friendly_name": p.FriendlyName,
			"description":   p.Description,
			"is_binary":     p.IsBinary,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"plugins": out,
		"count":   len(out),
	})
}
