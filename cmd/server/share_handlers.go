package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fileshare-gateway/internal/models"
	"github.com/fileshare-gateway/internal/sharing"
)

// shareErrorStatus maps core sharing errors onto HTTP statuses.
func shareErrorStatus(err error) int {
	var dup *sharing.DuplicateShareError
	var row *sharing.RowError
	switch {
	case errors.Is(err, sharing.ErrRecordNotFound), errors.Is(err, sharing.ErrItemNotFound):
		return http.StatusNotFound
	case errors.As(err, &dup),
		errors.Is(err, sharing.ErrRecordNotDraft),
		errors.Is(err, sharing.ErrRecordNotShared):
		return http.StatusConflict
	case errors.As(err, &row),
		errors.Is(err, sharing.ErrMissingUser),
		errors.Is(err, sharing.ErrUnregisteredPortalUser),
		errors.Is(err, sharing.ErrEmptyShare):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func handleSaveShare(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.SharingRecordInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := svc.Save(c.Request.Context(), &input)
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func handleGetShare(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func handleSubmitShare(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.Submit(c.Request.Context(), c.Param("id"))

		// A notification failure does not undo the submit; report it
		// alongside the shared record.
		var notifyErr *sharing.NotificationError
		if errors.As(err, &notifyErr) {
			c.JSON(http.StatusOK, gin.H{
				"record":  rec,
				"warning": notifyErr.Error(),
			})
			return
		}
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"record": rec})
	}
}

func handleCancelShare(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(shareErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": rec})
	}
}

func handleListSharableFiles(svc *sharing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := c.Query("entity_type")
		entityID := c.Query("entity_id")
		if entityType == "" || entityID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity_type and entity_id are required"})
			return
		}

		files, err := svc.ListSharableFiles(c.Request.Context(), entityType, entityID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"files": files})
	}
}
