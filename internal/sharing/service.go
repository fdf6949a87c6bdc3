package sharing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fileshare-gateway/internal/lock"
	"github.com/fileshare-gateway/internal/models"
)

// Directory resolves entity details the workflow needs from the surrounding
// system: display names, notification addresses, portal-user registration and
// attached files.
type Directory interface {
	ResolveDisplayName(ctx context.Context, entityType, entityID string) (string, error)
	ResolveEmail(ctx context.Context, entityType, entityID string) (string, error)
	IsRegisteredPortalUser(ctx context.Context, entityType, entityID string) (bool, error)
	ListFilesAttached(ctx context.Context, entityType, entityID string, typeFilter []string) ([]models.AttachedFile, error)
}

// Notifier delivers a share summary to the target user.
type Notifier interface {
	Send(to, subject, htmlBody string) error
}

// sharableFileTypes limits what may be attached to a share.
var sharableFileTypes = []string{"PDF", "GLB"}

// Service runs the sharing-record state machine: Draft -> Shared ->
// {Expired, Cancelled}. Transitions on one record are serialized through the
// locker so the duplicate-share check cannot be raced.
type Service struct {
	repo      *Repository
	dir       Directory
	notifier  Notifier
	locker    lock.Locker
	clock     Clock
	logger    *logrus.Logger
	portalURL string
}

func NewService(repo *Repository, dir Directory, notifier Notifier, locker lock.Locker,
	clock Clock, logger *logrus.Logger, portalURL string) *Service {
	return &Service{
		repo:      repo,
		dir:       dir,
		notifier:  notifier,
		locker:    locker,
		clock:     clock,
		logger:    logger,
		portalURL: portalURL,
	}
}

func recordLockKey(id string) string {
	return "sharing:record:" + id
}

// Save creates or updates a draft record. It resolves the owning reference's
// display name and the target user's email, runs the duplicate-share check
// (advisory at this stage) and keeps item statuses in step with the record.
func (s *Service) Save(ctx context.Context, input *models.SharingRecordInput) (*models.SharingRecord, error) {
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	release, err := s.locker.Acquire(ctx, recordLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", err)
	}
	defer release()

	now := s.clock.Now()
	rec := &models.SharingRecord{
		ID:            id,
		FileType:      input.FileType,
		FileReference: input.FileReference,
		UserType:      input.UserType,
		UserReference: input.UserReference,
		Status:        models.StatusDraft,
		Notify:        input.Notify,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if input.ID != "" {
		existing, err := s.repo.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing.Submitted || existing.Status != models.StatusDraft {
			return nil, ErrRecordNotDraft
		}
		rec.CreatedAt = existing.CreatedAt
	}

	for i, in := range input.Items {
		rec.Items = append(rec.Items, models.SharingItem{
			ID:               uuid.New().String(),
			RecordID:         id,
			Idx:              i + 1,
			FileURL:          in.FileURL,
			IsPrivate:        in.IsPrivate,
			DateBasedSharing: in.DateBasedSharing,
			ExpirationDate:   in.ExpirationDate,
			ViewBasedSharing: in.ViewBasedSharing,
			ViewsAllowed:     in.ViewsAllowed,
			ViewsRemaining:   in.ViewsAllowed,
			Status:           models.StatusDraft,
		})
	}

	if rec.FileType != "" && rec.FileReference != "" {
		name, err := s.dir.ResolveDisplayName(ctx, rec.FileType, rec.FileReference)
		if err != nil {
			return nil, fmt.Errorf("resolve reference name: %w", err)
		}
		rec.FileReferenceName = name
	}
	if rec.UserType != "" && rec.UserReference != "" {
		email, err := s.dir.ResolveEmail(ctx, rec.UserType, rec.UserReference)
		if err != nil {
			return nil, fmt.Errorf("resolve email: %w", err)
		}
		rec.Email = email
	}

	if err := s.checkDuplicates(ctx, rec); err != nil {
		return nil, err
	}

	if err := s.repo.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Submit moves a draft to Shared. All guards run before any state is
// written; a notification failure after the write does not undo it, the
// caller receives the updated record together with a NotificationError.
func (s *Service) Submit(ctx context.Context, recordID string) (*models.SharingRecord, error) {
	release, err := s.locker.Acquire(ctx, recordLockKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", err)
	}
	defer release()

	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Submitted || rec.Status != models.StatusDraft {
		return nil, ErrRecordNotDraft
	}

	if rec.UserReference == "" {
		return nil, ErrMissingUser
	}
	registered, err := s.dir.IsRegisteredPortalUser(ctx, rec.UserType, rec.UserReference)
	if err != nil {
		return nil, fmt.Errorf("check portal user: %w", err)
	}
	if !registered {
		return nil, ErrUnregisteredPortalUser
	}
	if len(rec.Items) == 0 {
		return nil, ErrEmptyShare
	}
	for i := range rec.Items {
		item := &rec.Items[i]
		if item.ViewBasedSharing && item.ViewsAllowed <= 0 {
			return nil, &RowError{Row: item.Idx, Err: ErrMissingViewLimit}
		}
		if item.DateBasedSharing && item.ExpirationDate == nil {
			return nil, &RowError{Row: item.Idx, Err: ErrMissingExpiration}
		}
	}

	if err := s.checkDuplicates(ctx, rec); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec.Status = models.StatusShared
	rec.Submitted = true
	rec.SubmittedAt = &now
	rec.UpdatedAt = now
	for i := range rec.Items {
		item := &rec.Items[i]
		if item.FileURL != "" && item.Status != models.StatusShared {
			item.Status = models.StatusShared
		}
		if item.ViewBasedSharing {
			item.ViewsRemaining = item.ViewsAllowed
		}
	}

	if err := s.repo.UpdateStatuses(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Notify && rec.Email != "" {
		subject, body := s.buildNotification(rec)
		if err := s.notifier.Send(rec.Email, subject, body); err != nil {
			s.logger.WithFields(logrus.Fields{
				"record_id": rec.ID,
				"email":     rec.Email,
			}).WithError(err).Warn("share notification failed")
			return rec, &NotificationError{Err: err}
		}
	}
	return rec, nil
}

// Cancel moves a shared record to Cancelled and force-sets every item along
// with it. Cancelled is terminal.
func (s *Service) Cancel(ctx context.Context, recordID string) (*models.SharingRecord, error) {
	release, err := s.locker.Acquire(ctx, recordLockKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", err)
	}
	defer release()

	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.Submitted || rec.Status != models.StatusShared {
		return nil, ErrRecordNotShared
	}

	now := s.clock.Now()
	rec.Status = models.StatusCancelled
	rec.CancelledAt = &now
	rec.UpdatedAt = now
	for i := range rec.Items {
		rec.Items[i].Status = models.StatusCancelled
	}

	if err := s.repo.UpdateStatuses(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads one record with its items.
func (s *Service) Get(ctx context.Context, recordID string) (*models.SharingRecord, error) {
	return s.repo.GetRecord(ctx, recordID)
}

// GetItem loads one item and its parent record.
func (s *Service) GetItem(ctx context.Context, itemID string) (*models.SharingItem, *models.SharingRecord, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.repo.GetRecord(ctx, item.RecordID)
	if err != nil {
		return nil, nil, err
	}
	return item, rec, nil
}

// SupplierDisplayName resolves the target user's display name for the
// watermark, falling back to the raw reference.
func (s *Service) SupplierDisplayName(ctx context.Context, rec *models.SharingRecord) string {
	name, err := s.dir.ResolveDisplayName(ctx, rec.UserType, rec.UserReference)
	if err != nil || name == "" {
		return rec.UserReference
	}
	return name
}

// ListSharableFiles lists files attached to the owning entity that may be
// added to a share.
func (s *Service) ListSharableFiles(ctx context.Context, entityType, entityID string) ([]models.AttachedFile, error) {
	return s.dir.ListFilesAttached(ctx, entityType, entityID, sharableFileTypes)
}

// checkDuplicates fails when any of the record's file URLs is already
// actively shared with the same user for the same owning reference.
func (s *Service) checkDuplicates(ctx context.Context, rec *models.SharingRecord) error {
	if rec.UserReference == "" || len(rec.Items) == 0 {
		return nil
	}
	active, err := s.repo.ActiveSharedFileURLs(ctx, rec.UserReference, rec.FileReference)
	if err != nil {
		return err
	}
	for i := range rec.Items {
		if active[rec.Items[i].FileURL] {
			return &DuplicateShareError{FileURL: rec.Items[i].FileURL}
		}
	}
	return nil
}

// buildNotification renders the share summary mail: one line per item with
// its sharing terms.
func (s *Service) buildNotification(rec *models.SharingRecord) (subject, body string) {
	lines := make([]string, 0, len(rec.Items))
	for i := range rec.Items {
		item := &rec.Items[i]
		details := "File: " + item.FileURL
		switch {
		case item.DateBasedSharing && item.ViewBasedSharing:
			details += fmt.Sprintf(", %d views valid till %s",
				item.ViewsAllowed, item.ExpirationDate.Format("2006-01-02"))
		case item.DateBasedSharing:
			details += ", valid till " + item.ExpirationDate.Format("2006-01-02")
		case item.ViewBasedSharing:
			details += fmt.Sprintf(", valid for %d views", item.ViewsAllowed)
		default:
			details += ", available unlimited times"
		}
		lines = append(lines, details)
	}

	subject = "Files Shared for " + rec.FileReference
	body = "Dear Supplier,<br><br>The following files have been shared with you:<br><br>" +
		strings.Join(lines, "<br>") +
		fmt.Sprintf("<br><br>To view these shared files, please <a href=%q>visit the supplier portal</a>.<br><br>Regards,<br>ERP Team", s.portalURL)
	return subject, body
}

// expireRecordIfDone moves the parent to Expired once every item has
// expired. Shared by the view gate and the sweeper.
func expireRecordIfDone(ctx context.Context, repo *Repository, recordID string) error {
	statuses, err := repo.ItemStatuses(ctx, recordID)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}
	for _, st := range statuses {
		if st != models.StatusExpired {
			return nil
		}
	}
	return repo.SetRecordStatus(ctx, recordID, models.StatusExpired)
}
