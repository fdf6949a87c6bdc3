package sharing

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sweeper ages out date-limited shares. It holds no timer of its own; the
// host process decides when Sweep runs and may run it as often as it likes.
type Sweeper struct {
	repo   *Repository
	clock  Clock
	logger *logrus.Logger
}

func NewSweeper(repo *Repository, clock Clock, logger *logrus.Logger) *Sweeper {
	return &Sweeper{repo: repo, clock: clock, logger: logger}
}

// Sweep expires every shared, submitted, date-limited item whose expiration
// date lies strictly before today, then moves each shared record whose items
// have all expired to Expired. Already-expired items fall out of the filter,
// so a second run in the same period changes nothing.
func (s *Sweeper) Sweep(ctx context.Context) error {
	today := startOfDay(s.clock.Now())

	expired, err := s.repo.ExpireDateBasedItems(ctx, today)
	if err != nil {
		return err
	}
	if expired == 0 {
		return nil
	}

	recordIDs, err := s.repo.SharedSubmittedRecordIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range recordIDs {
		if err := expireRecordIfDone(ctx, s.repo, id); err != nil {
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"expired_items": expired,
	}).Info("expired date based shares")
	return nil
}
