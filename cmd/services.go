package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campuscrawl/internal/config"
	"campuscrawl/internal/fetch"
	"campuscrawl/internal/logging"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/runlog"
	"campuscrawl/internal/store"
	"campuscrawl/internal/syncer"
	"campuscrawl/internal/worker"
)

// services bundles everything a command needs, built once from config.
type services struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *store.Store
	session  *fetch.Session
	recorder runlog.Recorder
	syncer   *syncer.Syncer

	closers []func()
}

// buildServices loads configuration and wires the store, portal session,
// run recorder and syncer. Call Close when done.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	metrics.Init()

	svc := &services{cfg: cfg, logger: logger}
	svc.closers = append(svc.closers, func() { _ = logger.Sync() })

	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Cache:  cfg.Store.Cache,
	}, logger.Named("store"))
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.store = st
	svc.closers = append(svc.closers, func() { _ = st.Close() })

	session, err := fetch.NewSession(fetch.Config{
		BaseURL:        cfg.Portal.BaseURL,
		Username:       cfg.Portal.Username,
		Password:       cfg.Portal.Password,
		CredentialFile: cfg.Portal.CredentialFile,
		UserAgent:      cfg.Portal.UserAgent,
		Timeout:        cfg.PortalTimeout(),
		AuthTTL:        cfg.PortalAuthTTL(),
	}, logger.Named("portal"))
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.session = session
	svc.closers = append(svc.closers, func() { _ = session.Close() })

	svc.recorder = runlog.NewMemory()
	if cfg.Runlog.PostgresDSN != "" {
		pg, err := runlog.NewPostgres(ctx, cfg.Runlog.PostgresDSN)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open run log: %w", err)
		}
		svc.recorder = pg
		svc.closers = append(svc.closers, pg.Close)
	}

	policy := worker.NewRetryPolicyWith(cfg.Sync.RetryAttempts, cfg.RetryBase(), cfg.RetryCeiling())
	svc.syncer = syncer.New(st, session, svc.recorder, syncer.Config{
		InstitutionID: cfg.Sync.InstitutionID,
		FirstYear:     cfg.Sync.FirstYear,
		LastYear:      cfg.Sync.LastYear,
		Workers:       cfg.Sync.Workers,
		Phases:        cfg.Sync.Phases,
	}, policy, logger.Named("syncer"))

	return svc, nil
}

// Close releases resources in reverse construction order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
