package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status reports room occupancy so a lobby can tell whether creating another
// room would succeed.
func (h *Handler) Status(c *gin.Context) {
	count := h.Manager.RoomCount()
	limit := h.Manager.MaxRooms()
	c.JSON(http.StatusOK, gin.H{
		"rooms":      count,
		"max_rooms":  limit,
		"can_create": count < limit,
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
