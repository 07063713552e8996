package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library-api/internal/service"
)

type SnapshotResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) queueExport(c *gin.Context) {
	if h.exporter == nil {
		h.respondError(c, service.ErrExportDisabled)
		return
	}

	fresh := h.exporter.Enqueue()
	h.requestLogger(c).WithField("coalesced", !fresh).Info("catalog export requested")
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (h *Handler) listExports(c *gin.Context) {
	if h.exports == nil {
		h.respondError(c, service.ErrExportDisabled)
		return
	}

	snapshots, err := h.exports.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]SnapshotResponse, len(snapshots))
	for i, snap := range snapshots {
		resp[i] = SnapshotResponse{Key: snap.Key, Size: snap.Size}
		if snap.LastModified != nil && !snap.LastModified.IsZero() {
			v := snap.LastModified.Format(time.RFC3339)
			resp[i].LastModified = &v
		}
	}
	c.JSON(http.StatusOK, resp)
}
