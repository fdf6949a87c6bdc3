package sharing

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileshare-gateway/internal/lock"
	"github.com/fileshare-gateway/internal/models"
)

type fakeDirectory struct {
	displayNames map[string]string
	emails       map[string]string
	portalUsers  map[string]bool
	files        []models.AttachedFile
}

func (d *fakeDirectory) key(entityType, entityID string) string {
	return entityType + "/" + entityID
}

func (d *fakeDirectory) ResolveDisplayName(_ context.Context, entityType, entityID string) (string, error) {
	return d.displayNames[d.key(entityType, entityID)], nil
}

func (d *fakeDirectory) ResolveEmail(_ context.Context, entityType, entityID string) (string, error) {
	return d.emails[d.key(entityType, entityID)], nil
}

func (d *fakeDirectory) IsRegisteredPortalUser(_ context.Context, entityType, entityID string) (bool, error) {
	return d.portalUsers[d.key(entityType, entityID)], nil
}

func (d *fakeDirectory) ListFilesAttached(_ context.Context, _, _ string, _ []string) ([]models.AttachedFile, error) {
	return d.files, nil
}

type fakeNotifier struct {
	fail     bool
	sent     int
	to       string
	subject  string
	htmlBody string
}

func (n *fakeNotifier) Send(to, subject, htmlBody string) error {
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.sent++
	n.to = to
	n.subject = subject
	n.htmlBody = htmlBody
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type testEnv struct {
	svc      *Service
	repo     *Repository
	dir      *fakeDirectory
	notifier *fakeNotifier
	clock    *fixedClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, "sqlite3")
	require.NoError(t, repo.Initialize(context.Background()))

	dir := &fakeDirectory{
		displayNames: map[string]string{
			"Item/ITEM-001":    "Precision Bracket",
			"Supplier/SUP-001": "Acme Metalworks",
		},
		emails: map[string]string{
			"Supplier/SUP-001": "contact@acme.example",
		},
		portalUsers: map[string]bool{
			"Supplier/SUP-001": true,
		},
	}
	notifier := &fakeNotifier{}
	clock := &fixedClock{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	svc := NewService(repo, dir, notifier, lock.NewMemoryLocker(), clock, logger,
		"https://portal.example")
	return &testEnv{svc: svc, repo: repo, dir: dir, notifier: notifier, clock: clock}
}

func draftInput(items ...models.SharingItemInput) *models.SharingRecordInput {
	return &models.SharingRecordInput{
		FileType:      "Item",
		FileReference: "ITEM-001",
		UserType:      "Supplier",
		UserReference: "SUP-001",
		Notify:        true,
		Items:         items,
	}
}

func unlimitedItem(url string) models.SharingItemInput {
	return models.SharingItemInput{FileURL: url, IsPrivate: true}
}

func TestSaveResolvesReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/drawing.pdf")))
	require.NoError(t, err)

	assert.Equal(t, "Precision Bracket", rec.FileReferenceName)
	assert.Equal(t, "contact@acme.example", rec.Email)
	assert.Equal(t, models.StatusDraft, rec.Status)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, models.StatusDraft, rec.Items[0].Status)
	assert.Equal(t, 1, rec.Items[0].Idx)

	stored, err := env.repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.False(t, stored.Submitted)
}

func TestSubmitGuards(t *testing.T) {
	tests := []struct {
		name    string
		input   *models.SharingRecordInput
		wantErr error
		wantRow int
	}{
		{
			name: "missing user reference",
			input: &models.SharingRecordInput{
				FileType: "Item", FileReference: "ITEM-001", UserType: "Supplier",
				Items: []models.SharingItemInput{unlimitedItem("/files/a.pdf")},
			},
			wantErr: ErrMissingUser,
		},
		{
			name: "user without portal account",
			input: &models.SharingRecordInput{
				FileType: "Item", FileReference: "ITEM-001",
				UserType: "Supplier", UserReference: "SUP-NOPORTAL",
				Items: []models.SharingItemInput{unlimitedItem("/files/a.pdf")},
			},
			wantErr: ErrUnregisteredPortalUser,
		},
		{
			name:    "no items",
			input:   draftInput(),
			wantErr: ErrEmptyShare,
		},
		{
			name: "view based sharing without view limit",
			input: draftInput(models.SharingItemInput{
				FileURL: "/files/a.pdf", ViewBasedSharing: true, ViewsAllowed: 0,
			}),
			wantErr: ErrMissingViewLimit,
			wantRow: 1,
		},
		{
			name: "date based sharing without expiration",
			input: draftInput(
				unlimitedItem("/files/a.pdf"),
				models.SharingItemInput{FileURL: "/files/b.pdf", DateBasedSharing: true},
			),
			wantErr: ErrMissingExpiration,
			wantRow: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			rec, err := env.svc.Save(ctx, tt.input)
			require.NoError(t, err)

			_, err = env.svc.Submit(ctx, rec.ID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			if tt.wantRow > 0 {
				var rowErr *RowError
				require.ErrorAs(t, err, &rowErr)
				assert.Equal(t, tt.wantRow, rowErr.Row)
			}

			// A failed guard must leave the record untouched.
			stored, err := env.repo.GetRecord(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusDraft, stored.Status)
			assert.False(t, stored.Submitted)
			assert.Zero(t, env.notifier.sent)
		})
	}
}

func TestSubmitSharesRecordAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rec, err := env.svc.Save(ctx, draftInput(
		models.SharingItemInput{FileURL: "/files/a.pdf", IsPrivate: true, DateBasedSharing: true, ExpirationDate: &expiry},
		models.SharingItemInput{FileURL: "/files/b.pdf", ViewBasedSharing: true, ViewsAllowed: 3},
		unlimitedItem("/files/c.pdf"),
	))
	require.NoError(t, err)

	shared, err := env.svc.Submit(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusShared, shared.Status)
	assert.True(t, shared.Submitted)
	require.NotNil(t, shared.SubmittedAt)
	for _, item := range shared.Items {
		assert.Equal(t, models.StatusShared, item.Status)
	}
	assert.Equal(t, 3, shared.Items[1].ViewsRemaining)

	assert.Equal(t, 1, env.notifier.sent)
	assert.Equal(t, "contact@acme.example", env.notifier.to)
	assert.Equal(t, "Files Shared for ITEM-001", env.notifier.subject)
	assert.Contains(t, env.notifier.htmlBody, "File: /files/a.pdf, valid till 2024-07-01")
	assert.Contains(t, env.notifier.htmlBody, "File: /files/b.pdf, valid for 3 views")
	assert.Contains(t, env.notifier.htmlBody, "File: /files/c.pdf, available unlimited times")
	assert.Contains(t, env.notifier.htmlBody, "https://portal.example")
}

func TestSubmitNotificationFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.fail = true
	ctx := context.Background()

	rec, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/a.pdf")))
	require.NoError(t, err)

	shared, err := env.svc.Submit(ctx, rec.ID)
	require.Error(t, err)

	var notifyErr *NotificationError
	assert.ErrorAs(t, err, &notifyErr)
	require.NotNil(t, shared)
	assert.Equal(t, models.StatusShared, shared.Status)

	stored, err := env.repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShared, stored.Status)
}

func TestDuplicateShareRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/drawing.pdf")))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, first.ID)
	require.NoError(t, err)

	// Saving a second grant of the same file to the same user is rejected
	// before submission is even attempted.
	_, err = env.svc.Save(ctx, draftInput(unlimitedItem("/files/drawing.pdf")))
	var dup *DuplicateShareError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "/files/drawing.pdf", dup.FileURL)

	// A different file for the same pair is fine.
	second, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/other.pdf")))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, second.ID)
	require.NoError(t, err)

	// After the first share is cancelled the URL is free again.
	_, err = env.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	third, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/drawing.pdf")))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, third.ID)
	require.NoError(t, err)
}

func TestCancelIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/a.pdf")))
	require.NoError(t, err)

	// A draft cannot be cancelled.
	_, err = env.svc.Cancel(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotShared)

	_, err = env.svc.Submit(ctx, rec.ID)
	require.NoError(t, err)

	cancelled, err := env.svc.Cancel(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	for _, item := range cancelled.Items {
		assert.Equal(t, models.StatusCancelled, item.Status)
	}

	// No transition leads out of Cancelled, and nothing returns to Draft.
	_, err = env.svc.Submit(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotDraft)
	_, err = env.svc.Cancel(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrRecordNotShared)
}

func TestSaveRejectsEditingSubmittedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Save(ctx, draftInput(unlimitedItem("/files/a.pdf")))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, rec.ID)
	require.NoError(t, err)

	input := draftInput(unlimitedItem("/files/z.pdf"))
	input.ID = rec.ID
	_, err = env.svc.Save(ctx, input)
	assert.ErrorIs(t, err, ErrRecordNotDraft)
}

func TestListSharableFiles(t *testing.T) {
	env := newTestEnv(t)
	env.dir.files = []models.AttachedFile{
		{URL: "/private/files/a.pdf", IsPrivate: true},
		{URL: "/files/model.glb", IsPrivate: false},
	}

	files, err := env.svc.ListSharableFiles(context.Background(), "Item", "ITEM-001")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
