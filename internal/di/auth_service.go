package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"

	"github.com/omarluq/shopgate/internal/auth"
	"github.com/omarluq/shopgate/internal/config"
)

// ExtractorService wraps the bearer token extractor and, when keys come from
// a JWKS file, the watcher that reloads them on rotation.
type ExtractorService struct {
	Extractor *auth.Extractor
	admin     auth.Authenticator
	watcher   *auth.KeyWatcher
	logger    *zerolog.Logger
}

// NewExtractor loads verification keys. A JWKS file that cannot be watched
// disables rotation but is not fatal.
func NewExtractor(i do.Injector) (*ExtractorService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cacheSvc := do.MustInvoke[*CacheService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	logger := loggerSvc.Component("auth")

	extractor, err := auth.NewExtractor(&cfgSvc.Config.Auth, cacheSvc.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load token keys: %w", err)
	}

	svc := &ExtractorService{
		Extractor: extractor,
		admin:     adminAuthenticator(&cfgSvc.Config.Auth, extractor),
		logger:    logger,
	}

	if path := extractor.KeyFile(); path != "" {
		watcher, err := auth.NewKeyWatcher(path, extractor.ReloadKeys, logger)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("key watcher creation failed, rotation disabled")
		} else {
			svc.watcher = watcher
		}
	}

	return svc, nil
}

// StartWatching watches the JWKS file until ctx is canceled or Shutdown runs.
func (s *ExtractorService) StartWatching(ctx context.Context) {
	if s.watcher == nil {
		return
	}

	go func() {
		if err := s.watcher.Watch(ctx); err != nil {
			s.logger.Error().Err(err).Msg("key watcher error")
		}
	}()

	s.logger.Info().Str("path", s.watcher.Path()).Msg("key file watcher started")
}

// Shutdown implements do.Shutdowner.
func (s *ExtractorService) Shutdown() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// AdminAuthenticator returns the operator endpoint guard, or nil when
// neither an admin key nor an admin role is configured.
func (s *ExtractorService) AdminAuthenticator() auth.Authenticator {
	return s.admin
}

func adminAuthenticator(authCfg *config.AuthConfig, extractor *auth.Extractor) auth.Authenticator {
	if !authCfg.IsAdminGuarded() {
		return nil
	}

	var authenticators []auth.Authenticator
	if authCfg.AdminAPIKey != "" {
		authenticators = append(authenticators, auth.NewAPIKeyAuthenticator(authCfg.AdminAPIKey))
	}
	if authCfg.AdminRole != "" {
		authenticators = append(authenticators, auth.NewRoleAuthenticator(extractor, authCfg.AdminRole))
	}
	return auth.NewChainAuthenticator(authenticators...)
}
