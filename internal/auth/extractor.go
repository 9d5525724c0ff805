package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/omarluq/shopgate/internal/cache"
	"github.com/omarluq/shopgate/internal/config"
)

// keyState pairs a verification key set with a generation number. The
// generation is part of every token cache key, so rotating keys orphans
// tokens verified under the old set.
type keyState struct {
	set        jwk.Set
	generation uint64
}

// Extractor verifies bearer tokens locally and turns them into a UserContext.
// It is safe for concurrent use; keys may be swapped while requests run.
type Extractor struct {
	keys        atomic.Pointer[keyState]
	cache       cache.Cache
	logger      *zerolog.Logger
	now         func() time.Time
	issuer      mo.Option[string]
	audience    mo.Option[string]
	source      KeySource
	userIDClaim string
	skew        time.Duration
	cacheTTL    time.Duration
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithClock replaces time.Now for expiry checks, for tests.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor loads the configured keys. With no key source configured
// every presented token is rejected, which is only useful when all routes
// are public. A nil cache disables token caching.
func NewExtractor(
	cfg *config.AuthConfig,
	tokenCache cache.Cache,
	logger *zerolog.Logger,
	opts ...ExtractorOption,
) (*Extractor, error) {
	e := &Extractor{
		cache:       tokenCache,
		logger:      logger,
		now:         time.Now,
		issuer:      cfg.GetIssuerOption(),
		audience:    cfg.GetAudienceOption(),
		userIDClaim: cfg.GetUserIDClaim(),
		skew:        cfg.GetClockSkew(),
		cacheTTL:    cfg.GetTokenCacheTTL(),
		source: KeySource{
			Secret:    cfg.JWTSecret,
			Algorithm: cfg.GetAlgorithm(),
			JWKSFile:  cfg.JWKSFile,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	if !cfg.HasKeySource() {
		return e, nil
	}

	set, err := LoadKeys(e.source)
	if err != nil {
		return nil, err
	}
	e.keys.Store(&keyState{set: set, generation: 1})

	if logger != nil {
		logger.Info().
			Int("keys", set.Len()).
			Bool("jwks_file", cfg.JWKSFile != "").
			Msg("token verification keys loaded")
	}
	return e, nil
}

// KeyFile returns the watched JWKS path, or "" if none is configured.
func (e *Extractor) KeyFile() string {
	return e.source.JWKSFile
}

// ReloadKeys re-reads the key sources and swaps them in atomically. On
// failure the previous keys stay active.
func (e *Extractor) ReloadKeys() error {
	set, err := LoadKeys(e.source)
	if err != nil {
		if e.logger != nil {
			e.logger.Error().Err(err).Msg("key reload failed, keeping previous keys")
		}
		return err
	}

	var gen uint64 = 1
	if prev := e.keys.Load(); prev != nil {
		gen = prev.generation + 1
	}
	e.keys.Store(&keyState{set: set, generation: gen})

	if e.logger != nil {
		e.logger.Info().Int("keys", set.Len()).Uint64("generation", gen).Msg("token verification keys reloaded")
	}
	return nil
}

// Extract verifies the Authorization header value. An empty header yields
// None with no error; any presented but unusable token yields an
// *InvalidTokenError.
func (e *Extractor) Extract(ctx context.Context, header string) (mo.Option[UserContext], error) {
	none := mo.None[UserContext]()
	if header == "" {
		return none, nil
	}

	token, err := ParseBearer(header)
	if err != nil {
		return none, err
	}

	state := e.keys.Load()
	if state == nil {
		return none, invalid(ReasonNotConfigured, nil)
	}

	key := cacheKey(state.generation, token)
	if user, ok := e.lookup(ctx, key); ok {
		return mo.Some(user), nil
	}

	user, err := e.verify(token, state.set)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("bearer token rejected")
		return none, err
	}

	e.store(ctx, key, &user)
	return mo.Some(user), nil
}

func (e *Extractor) verify(token string, set jwk.Set) (UserContext, error) {
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set, jws.WithRequireKid(false), jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(e.now)),
		jwt.WithAcceptableSkew(e.skew),
	}
	if iss, ok := e.issuer.Get(); ok {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud, ok := e.audience.Get(); ok {
		opts = append(opts, jwt.WithAudience(aud))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return UserContext{}, classifyParseError(err)
	}
	// Tokens without exp would verify forever.
	if tok.Expiration().IsZero() {
		return UserContext{}, invalid(ReasonMissingExpiry, nil)
	}

	userID := e.userID(tok)
	if userID == "" {
		return UserContext{}, invalid(ReasonMissingUserID, nil)
	}

	return UserContext{
		UserID:    userID,
		Email:     stringClaim(tok, "email"),
		Roles:     roles(tok),
		ExpiresAt: tok.Expiration(),
	}, nil
}

func classifyParseError(err error) *InvalidTokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return invalid(ReasonExpired, err)
	case errors.Is(err, jwt.ErrTokenNotYetValid()):
		return invalid(ReasonNotYetValid, err)
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return invalid(ReasonIssuer, err)
	case errors.Is(err, jwt.ErrInvalidAudience()):
		return invalid(ReasonAudience, err)
	default:
		return invalid(ReasonSignature, err)
	}
}

func (e *Extractor) userID(tok jwt.Token) string {
	if e.userIDClaim == jwt.SubjectKey {
		return tok.Subject()
	}
	return stringClaim(tok, e.userIDClaim)
}

// stringClaim returns a string or numeric claim as text.
func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// roles reads the "roles" array, falling back to a single "role" or a
// space-separated "scope".
func roles(tok jwt.Token) []string {
	if v, ok := tok.Get("roles"); ok {
		switch list := v.(type) {
		case []string:
			return list
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			return []string{list}
		}
	}
	if role := stringClaim(tok, "role"); role != "" {
		return []string{role}
	}
	if scope := stringClaim(tok, "scope"); scope != "" {
		return strings.Fields(scope)
	}
	return nil
}

func cacheKey(generation uint64, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "tok:" + strconv.FormatUint(generation, 10) + ":" + hex.EncodeToString(sum[:])
}

func (e *Extractor) lookup(ctx context.Context, key string) (UserContext, bool) {
	if e.cache == nil {
		return UserContext{}, false
	}
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		return UserContext{}, false
	}

	var user UserContext
	if err := json.Unmarshal(data, &user); err != nil {
		_ = e.cache.Delete(ctx, key)
		return UserContext{}, false
	}
	if !user.ExpiresAt.IsZero() && !e.now().Before(user.ExpiresAt.Add(e.skew)) {
		_ = e.cache.Delete(ctx, key)
		return UserContext{}, false
	}
	return user, true
}

// store caches a verified user until the earlier of token expiry and the
// configured cache TTL.
func (e *Extractor) store(ctx context.Context, key string, user *UserContext) {
	if e.cache == nil {
		return
	}
	ttl := e.cacheTTL
	if !user.ExpiresAt.IsZero() {
		if remaining := user.ExpiresAt.Sub(e.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := e.cache.SetWithTTL(ctx, key, data, ttl); err != nil && e.logger != nil {
		e.logger.Debug().Err(err).Msg("token cache write failed")
	}
}
