package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wedding-invite-backend/internal/repo"
	"github.com/tbourn/wedding-invite-backend/internal/repo/kvdb"
)

func TestParseLocalStoreURL(t *testing.T) {
	tests := []struct {
		raw         string
		wantBackend string
		wantPath    string
		wantErr     bool
	}{
		{raw: "sqlite://cache.db", wantBackend: backendSQLite, wantPath: "cache.db"},
		{raw: "sqlite:///var/lib/inv/cache.db", wantBackend: backendSQLite, wantPath: "/var/lib/inv/cache.db"},
		{raw: "file://cache.db", wantBackend: backendSQLite, wantPath: "cache.db"},
		{raw: "kvdb://data/cache.bolt", wantBackend: backendKVDB, wantPath: "data/cache.bolt"},
		{raw: "bolt:///tmp/cache.bolt", wantBackend: backendKVDB, wantPath: "/tmp/cache.bolt"},
		{raw: "cache.db", wantBackend: backendSQLite, wantPath: "cache.db"},
		{raw: "  ", wantErr: true},
		{raw: "sqlite://", wantErr: true},
		{raw: "redis://localhost:6379", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			backend, path, err := parseLocalStoreURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, backend)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestOpenLocalStore_Backends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	sq, backend, err := openLocalStore(ctx, "sqlite://"+filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	assert.Equal(t, backendSQLite, backend)
	assert.IsType(t, &repo.SQLiteStore{}, sq)

	kv, backend, err := openLocalStore(ctx, "kvdb://"+filepath.Join(dir, "cache.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	assert.Equal(t, backendKVDB, backend)
	assert.IsType(t, &kvdb.Store{}, kv)

	for _, st := range []repo.LocalInvitationStore{sq, kv} {
		v, err := st.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, repo.SchemaVersion, v)
	}
}

func TestOpenLocalStore_BadURL(t *testing.T) {
	_, _, err := openLocalStore(context.Background(), "mongodb://x/y")
	require.Error(t, err)
}
