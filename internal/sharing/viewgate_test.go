package sharing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileshare-gateway/internal/models"
)

func submitShare(t *testing.T, env *testEnv, items ...models.SharingItemInput) *models.SharingRecord {
	t.Helper()
	ctx := context.Background()

	rec, err := env.svc.Save(ctx, draftInput(items...))
	require.NoError(t, err)
	shared, err := env.svc.Submit(ctx, rec.ID)
	require.NoError(t, err)
	return shared
}

func TestRecordViewLogsEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := submitShare(t, env, unlimitedItem("/files/a.pdf"))
	itemID := rec.Items[0].ID

	require.NoError(t, env.svc.RecordView(ctx, itemID, "supplier-acme"))
	require.NoError(t, env.svc.RecordView(ctx, itemID, "supplier-acme"))

	// Unlimited items never age out, every call appends one entry.
	n, err := env.repo.CountViewLogs(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	item, err := env.repo.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShared, item.Status)
}

func TestRecordViewUnknownItem(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.RecordView(context.Background(), "no-such-item", "viewer")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRecordViewExpiredItemIsSilentNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := submitShare(t, env, unlimitedItem("/files/a.pdf"))
	itemID := rec.Items[0].ID
	require.NoError(t, env.repo.ExpireItem(ctx, itemID))

	require.NoError(t, env.svc.RecordView(ctx, itemID, "supplier-acme"))

	n, err := env.repo.CountViewLogs(ctx, itemID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestViewLimitExhaustionExpiresItemAndRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := submitShare(t, env, models.SharingItemInput{
		FileURL: "/files/a.pdf", ViewBasedSharing: true, ViewsAllowed: 1,
	})
	itemID := rec.Items[0].ID

	// First view is logged and burns the last remaining view.
	require.NoError(t, env.svc.RecordView(ctx, itemID, "supplier-acme"))

	item, err := env.repo.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.ViewsRemaining)
	assert.Equal(t, models.StatusExpired, item.Status)

	stored, err := env.repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)

	// Second view on the now-expired item leaves no trace.
	require.NoError(t, env.svc.RecordView(ctx, itemID, "supplier-acme"))
	n, err := env.repo.CountViewLogs(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestViewDecrementKeepsItemSharedWhileViewsRemain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := submitShare(t, env,
		models.SharingItemInput{FileURL: "/files/a.pdf", ViewBasedSharing: true, ViewsAllowed: 2},
		unlimitedItem("/files/b.pdf"),
	)
	limitedID := rec.Items[0].ID

	require.NoError(t, env.svc.RecordView(ctx, limitedID, "supplier-acme"))

	item, err := env.repo.GetItem(ctx, limitedID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.ViewsRemaining)
	assert.Equal(t, models.StatusShared, item.Status)

	// Exhausting the limited item does not expire the record while the
	// unlimited sibling is still live.
	require.NoError(t, env.svc.RecordView(ctx, limitedID, "supplier-acme"))
	stored, err := env.repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShared, stored.Status)
	assert.Equal(t, models.StatusExpired, stored.Items[0].Status)
	assert.Equal(t, models.StatusShared, stored.Items[1].Status)
}
