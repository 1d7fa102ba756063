package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"go.uber.org/zap"
)

// tokenRefreshMargin is how far ahead of expiry a connection's token is
// considered due for refresh (spec.md §4.4's hourly refresh pass).
const tokenRefreshMargin = 7 * 24 * time.Hour

// maxTokenRefreshFailures marks a connection expired after this many
// consecutive refresh failures, matching the circuit breaker's own
// failure-threshold idiom.
const maxTokenRefreshFailures = 3

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenRefresher performs the OAuth2 refresh-token exchange for every
// channel kind, routed by the connection's channel.
type TokenRefresher struct {
	client *resty.Client
	creds  config.ChannelCredentials
	db     *Engine
	logger *zap.Logger
}

func NewTokenRefresher(client *resty.Client, creds config.ChannelCredentials, engine *Engine, logger *zap.Logger) *TokenRefresher {
	return &TokenRefresher{client: client, creds: creds, db: engine, logger: logger}
}

// RefreshDueTokens walks every active connection whose token_expires_at
// is within the refresh margin and exchanges its refresh token.
func (t *TokenRefresher) RefreshDueTokens(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(tokenRefreshMargin)
	var conns []models.ChannelConnection
	err := t.db.db.WithContext(ctx).
		Where("status = ? AND token_expires_at IS NOT NULL AND token_expires_at < ?", models.ConnectionActive, cutoff).
		Find(&conns).Error
	if err != nil {
		return err
	}

	for i := range conns {
		if err := t.RefreshConnection(ctx, &conns[i]); err != nil {
			t.logger.Warn("token refresh failed", zap.String("channel", string(conns[i].Channel)), zap.Error(err))
		}
	}
	return nil
}

// RefreshConnection exchanges one connection's refresh token for a new
// access token, disabling the connection after three consecutive
// failures (spec.md §4.4 token-refresh section).
func (t *TokenRefresher) RefreshConnection(ctx context.Context, conn *models.ChannelConnection) error {
	url, clientID, clientSecret := t.oauthParamsFor(conn.Channel)
	if url == "" {
		return fmt.Errorf("no oauth endpoint configured for channel %q", conn.Channel)
	}

	var token oauthTokenResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": conn.RefreshTokenEncrypted,
			"client_id":     clientID,
			"client_secret": clientSecret,
		}).
		SetResult(&token).
		Post(url)

	if err != nil || resp.IsError() {
		conn.ErrorCount++
		updates := map[string]interface{}{"error_count": conn.ErrorCount, "last_error_at": time.Now().UTC()}
		if conn.ErrorCount >= maxTokenRefreshFailures {
			conn.Status = models.ConnectionExpired
			updates["status"] = models.ConnectionExpired
		}
		t.db.db.WithContext(ctx).Model(conn).Updates(updates)
		if err != nil {
			return err
		}
		return fmt.Errorf("oauth refresh failed: status %d", resp.StatusCode())
	}

	expiresAt := time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
	updates := map[string]interface{}{
		"access_token_encrypted": token.AccessToken,
		"token_expires_at":       expiresAt,
		"error_count":            0,
	}
	if token.RefreshToken != "" {
		updates["refresh_token_encrypted"] = token.RefreshToken
	}
	return t.db.db.WithContext(ctx).Model(conn).Updates(updates).Error
}

func (t *TokenRefresher) oauthParamsFor(channel models.ChannelKind) (url, clientID, clientSecret string) {
	switch channel {
	case models.ChannelAirbnb:
		return t.creds.AirbnbOAuthURL, t.creds.AirbnbClientID, t.creds.AirbnbClientSecret
	case models.ChannelBookingCom:
		return t.creds.BookingComOAuthURL, t.creds.BookingComClientID, t.creds.BookingComClientSecret
	case models.ChannelExpedia:
		return t.creds.ExpediaOAuthURL, t.creds.ExpediaClientID, t.creds.ExpediaClientSecret
	case models.ChannelFewoDirekt:
		return t.creds.FewoOAuthURL, t.creds.FewoClientID, t.creds.FewoClientSecret
	case models.ChannelGoogle:
		return t.creds.GoogleOAuthURL, t.creds.GoogleClientID, t.creds.GoogleClientSecret
	default:
		return "", "", ""
	}
}
