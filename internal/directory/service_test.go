package directory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, allowPublic bool) *Service {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, "sqlite3", allowPublic)
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func seedEntity(t *testing.T, svc *Service, entityType, entityID, name, email string) {
	t.Helper()
	_, err := svc.db.Exec(
		`INSERT INTO directory_entities (entity_type, entity_id, display_name, email) VALUES (?, ?, ?, ?)`,
		entityType, entityID, name, email)
	require.NoError(t, err)
}

func seedFile(t *testing.T, svc *Service, entityType, entityID, url, fileType string, private bool) {
	t.Helper()
	_, err := svc.db.Exec(
		`INSERT INTO attached_files (entity_type, entity_id, file_url, file_type, is_private) VALUES (?, ?, ?, ?, ?)`,
		entityType, entityID, url, fileType, private)
	require.NoError(t, err)
}

func TestResolveDisplayNameAndEmail(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()
	seedEntity(t, svc, "Supplier", "SUP-001", "Acme Metalworks", "contact@acme.example")

	name, err := svc.ResolveDisplayName(ctx, "Supplier", "SUP-001")
	require.NoError(t, err)
	assert.Equal(t, "Acme Metalworks", name)

	email, err := svc.ResolveEmail(ctx, "Supplier", "SUP-001")
	require.NoError(t, err)
	assert.Equal(t, "contact@acme.example", email)

	// Unknown entities resolve to empty values, not errors.
	name, err = svc.ResolveDisplayName(ctx, "Supplier", "SUP-404")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestIsRegisteredPortalUser(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.db.Exec(
		`INSERT INTO portal_users (id, username, email, password_hash, parent_type, parent_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"pu-1", "acme", "contact@acme.example", "x", "Supplier", "SUP-001", time.Now().UTC())
	require.NoError(t, err)

	ok, err := svc.IsRegisteredPortalUser(ctx, "Supplier", "SUP-001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsRegisteredPortalUser(ctx, "Customer", "SUP-001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFilesAttachedDedupPrefersPrivate(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	seedFile(t, svc, "Item", "ITEM-001", "/public/files/drawing.pdf", "PDF", false)
	seedFile(t, svc, "Item", "ITEM-001", "/private/files/drawing.pdf", "PDF", true)
	seedFile(t, svc, "Item", "ITEM-001", "/files/model.glb", "GLB", false)
	seedFile(t, svc, "Item", "ITEM-001", "/files/photo.png", "PNG", true)

	files, err := svc.ListFilesAttached(ctx, "Item", "ITEM-001", []string{"PDF", "GLB"})
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]bool{}
	for _, f := range files {
		byName[f.URL] = f.IsPrivate
	}
	// The private copy of drawing.pdf wins over the public one.
	assert.Contains(t, byName, "/private/files/drawing.pdf")
	assert.NotContains(t, byName, "/public/files/drawing.pdf")
	assert.Contains(t, byName, "/files/model.glb")
}

func TestListFilesAttachedPrivateOnly(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	seedFile(t, svc, "Item", "ITEM-001", "/public/files/a.pdf", "PDF", false)
	seedFile(t, svc, "Item", "ITEM-001", "/private/files/b.pdf", "PDF", true)

	files, err := svc.ListFilesAttached(ctx, "Item", "ITEM-001", []string{"PDF", "GLB"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/private/files/b.pdf", files[0].URL)
	assert.True(t, files[0].IsPrivate)
}
