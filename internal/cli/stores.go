package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/wedding-invite-backend/internal/config"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
	"github.com/tbourn/wedding-invite-backend/internal/repo/kvdb"
)

// Local store backends selectable through LOCAL_STORE_URL.
const (
	backendSQLite = "sqlite"
	backendKVDB   = "kvdb"
)

// openLocalStore builds and initializes the local store named by raw:
// sqlite://path, kvdb://path, or a bare path meaning SQLite.
func openLocalStore(ctx context.Context, raw string) (repo.LocalInvitationStore, string, error) {
	backend, path, err := parseLocalStoreURL(raw)
	if err != nil {
		return nil, "", err
	}
	var st repo.LocalInvitationStore
	switch backend {
	case backendKVDB:
		st = kvdb.New(path)
	default:
		st = repo.NewSQLiteStore(path)
	}
	if err := st.Init(ctx); err != nil {
		return nil, "", fmt.Errorf("init %s store %q: %w", backend, path, err)
	}
	return st, backend, nil
}

func parseLocalStoreURL(raw string) (backend, path string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("local store url is empty")
	}
	if !strings.Contains(raw, "://") {
		return backendSQLite, raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse local store url: %w", err)
	}
	path = u.Host + u.Path
	if path == "" {
		return "", "", fmt.Errorf("local store url %q has no path", raw)
	}
	switch u.Scheme {
	case "sqlite", "file":
		return backendSQLite, path, nil
	case "kvdb", "bolt":
		return backendKVDB, path, nil
	default:
		return "", "", fmt.Errorf("unsupported local store scheme %q", u.Scheme)
	}
}

// stores bundles the opened databases for one command run.
type stores struct {
	local   repo.LocalInvitationStore
	backend string
	remote  *remote.Store
}

// openStores opens the local store and, when withRemote is set, the remote
// document store.
func openStores(ctx context.Context, cfg config.Config, withRemote bool) (*stores, error) {
	local, backend, err := openLocalStore(ctx, cfg.LocalStoreURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open local store", err)
	}
	s := &stores{local: local, backend: backend}
	if !withRemote {
		return s, nil
	}
	db, err := remote.Open(cfg.RemoteDriver, cfg.RemoteDSN)
	if err != nil {
		_ = local.Close()
		return nil, WrapExitError(ExitCommandError, "open remote store", err)
	}
	s.remote = remote.NewStore(db, cfg.SnapshotInterval)
	return s, nil
}

// ping reports whether both stores answer.
func (s *stores) ping(ctx context.Context) error {
	if _, err := s.local.Version(ctx); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}
	return s.remote.Ping(ctx)
}

func (s *stores) Close() {
	if err := s.local.Close(); err != nil {
		log.Warn().Err(err).Msg("close local store")
	}
	if s.remote == nil {
		return
	}
	if sqlDB, err := s.remote.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close remote store")
		}
	}
}
