package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Service resolves bearer tokens into caller capabilities. Tokens are HS256
// JWTs carrying a token id and group list; revocation and expiry are checked
// against the issuance record on every request, so a revoked token dies
// immediately even though the signature still verifies.
type Service struct {
	secret []byte
	tokens interfaces.TokenStorage
	logger arbor.ILogger
}

type tokenClaims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

// NewService creates the auth service.
func NewService(config *common.Config, tokens interfaces.TokenStorage, logger arbor.ILogger) (*Service, error) {
	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}
	return &Service{
		secret: []byte(config.Auth.JWTSecret),
		tokens: tokens,
		logger: logger,
	}, nil
}

// Resolve parses and validates a bearer token. An empty token yields the
// anonymous public-read context.
func (s *Service) Resolve(ctx context.Context, bearer string) (*models.AuthContext, error) {
	if bearer == "" {
		s.logger.Warn().Msg("Request without auth token, resolving to anonymous public-read context")
		return models.AnonymousContext(), nil
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, models.WrapServiceError(models.ErrAuthInvalidToken, "token signature or claims invalid", err)
	}
	if claims.ID == "" {
		return nil, models.NewServiceError(models.ErrAuthInvalidToken, "token carries no id")
	}

	record, err := s.tokens.GetToken(ctx, claims.ID)
	if err != nil {
		if models.CodeOf(err) == models.ErrNotFound {
			return nil, models.NewServiceError(models.ErrAuthInvalidToken, "unknown token")
		}
		return nil, err
	}
	if record.Revoked {
		return nil, models.NewServiceError(models.ErrAuthInvalidToken, "token revoked")
	}
	if time.Now().After(record.ExpiresAt) {
		return nil, models.NewServiceError(models.ErrAuthInvalidToken, "token expired")
	}

	return contextFromGroups(claims.ID, record.Groups), nil
}

// contextFromGroups builds the capability set. Every token implicitly reads
// public; admin membership grants everything.
func contextFromGroups(tokenID string, groups []string) *models.AuthContext {
	permitted := make([]string, 0, len(groups)+1)
	isAdmin := false
	hasPublic := false
	for _, g := range groups {
		permitted = append(permitted, g)
		if g == models.GroupAdmin {
			isAdmin = true
		}
		if g == models.GroupPublic {
			hasPublic = true
		}
	}
	if !hasPublic {
		permitted = append(permitted, models.GroupPublic)
	}

	writeGroup := ""
	if len(groups) > 0 {
		writeGroup = groups[0]
	}
	return &models.AuthContext{
		TokenID:         tokenID,
		PermittedGroups: permitted,
		WriteGroup:      writeGroup,
		IsAdmin:         isAdmin,
	}
}

// Issue mints a signed token for the group set. The first group becomes the
// write group.
func (s *Service) Issue(ctx context.Context, groups []string, ttl time.Duration) (string, *models.TokenRecord, error) {
	if len(groups) == 0 {
		return "", nil, models.NewServiceError(models.ErrInvalidInput, "token requires at least one group")
	}

	now := time.Now().UTC()
	record := &models.TokenRecord{
		TokenID:   common.NewTokenID(),
		Groups:    groups,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := &tokenClaims{
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
			Issuer:    "finwire",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := s.tokens.SaveToken(ctx, record); err != nil {
		return "", nil, err
	}
	s.logger.Info().Str("token_id", record.TokenID).Strs("groups", groups).Msg("Token issued")
	return signed, record, nil
}

// Revoke marks a token record revoked.
func (s *Service) Revoke(ctx context.Context, tokenID string) error {
	if err := s.tokens.RevokeToken(ctx, tokenID); err != nil {
		return err
	}
	s.logger.Info().Str("token_id", tokenID).Msg("Token revoked")
	return nil
}
