package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fileshare-gateway/internal/models"
	"github.com/fileshare-gateway/internal/sharing"
	"github.com/fileshare-gateway/internal/storage"
	"github.com/fileshare-gateway/internal/watermark"
)

func viewerIdentity(c *gin.Context) string {
	if username := c.GetString("username"); username != "" {
		return username
	}
	return c.GetString("userID")
}

func handleRecordView(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := svc.RecordView(c.Request.Context(), c.Param("itemID"), viewerIdentity(c))
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleRender(svc *sharing.Service, store *storage.Service, renderer *watermark.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		itemID := c.Query("item")
		if itemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item is required"})
			return
		}

		ctx := c.Request.Context()
		item, rec, err := svc.GetItem(ctx, itemID)
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		switch item.Status {
		case models.StatusExpired:
			c.JSON(http.StatusGone, gin.H{"error": "share has expired"})
			return
		case models.StatusShared:
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "share is not active"})
			return
		}

		// Each authorized render is one logged view; for view-limited items
		// this burns one of the remaining views.
		if err := svc.RecordView(ctx, itemID, viewerIdentity(c)); err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		data, err := store.FetchFileBytes(ctx, item.FileURL, item.IsPrivate)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}

		marked, err := renderer.Render(ctx, data, svc.SupplierDisplayName(ctx, rec))
		if err != nil {
			switch {
			case errors.Is(err, watermark.ErrDocumentTooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			case errors.Is(err, watermark.ErrInvalidDocument):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
			}
			return
		}

		c.Data(http.StatusOK, "application/pdf", marked)
	}
}
