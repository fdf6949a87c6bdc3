package sharing

import (
	"context"

	"github.com/google/uuid"

	"github.com/fileshare-gateway/internal/models"
)

// RecordView logs one view of a sharing item. An Expired item is a silent
// no-op: there is nothing left to show and nothing to log. For view-limited
// items the remaining count is decremented atomically; hitting zero expires
// the item and, when it was the last live item, the parent record.
func (s *Service) RecordView(ctx context.Context, itemID, viewer string) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status == models.StatusExpired {
		return nil
	}

	entry := &models.ViewLogEntry{
		ID:        uuid.New().String(),
		ViewedBy:  viewer,
		RecordID:  item.RecordID,
		ItemID:    item.ID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertViewLog(ctx, entry); err != nil {
		return err
	}

	if !item.ViewBasedSharing {
		return nil
	}
	remaining, decremented, err := s.repo.DecrementViews(ctx, itemID)
	if err != nil {
		return err
	}
	if decremented && remaining == 0 {
		if err := s.repo.ExpireItem(ctx, itemID); err != nil {
			return err
		}
		return expireRecordIfDone(ctx, s.repo, item.RecordID)
	}
	return nil
}
