package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"swiftconvert/internal/apiclient"
	"swiftconvert/internal/config"
	"swiftconvert/internal/logger"
	"swiftconvert/internal/results"
	"swiftconvert/internal/settings"
	"swiftconvert/internal/store"
)

// app holds what every command shares: configuration, the log and the
// local database with its settings and history views.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *store.Store
	settings *settings.Store
	history  *results.History
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{File: cfg.LogFile, Verbose: verbose})
	if err != nil {
		return nil, err
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   log,
		db:       db,
		settings: settings.NewStore(db, cfg.Upload.OutputTypes, log.Named("settings")),
		history:  results.NewHistory(db, log.Named("history")),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// client builds the service client. A stored or configured token is sent
// as bearer auth; an expired JWT is refused before any request is made.
func (a *app) client() (*apiclient.Client, error) {
	if err := a.cfg.RequireService(); err != nil {
		return nil, err
	}

	token, err := apiclient.ResolveToken(a.cfg.Token)
	switch {
	case errors.Is(err, apiclient.ErrTokenNotFound):
		a.logger.Debug("no access token, sending anonymous requests", zap.Error(err))
	case err != nil:
		return nil, err
	default:
		if info, err := apiclient.InspectToken(token); err == nil {
			if info.Expired(time.Now()) {
				return nil, fmt.Errorf("access token expired at %s; run `swiftconvert auth login`", info.Expiry.Format(time.RFC3339))
			}
		} else {
			a.logger.Debug("token is not a JWT, sending it as is")
		}
	}

	return apiclient.New(apiclient.Options{
		BaseURL: a.cfg.ServiceURL,
		Token:   token,
		Timeout: a.cfg.Timeout,
		Formats: a.cfg.Upload.OutputTypes,
		Logger:  a.logger.Named("api"),
	})
}
