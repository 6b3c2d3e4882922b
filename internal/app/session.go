package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/models"
)

const (
	sessionKeyTpl = "session:%s" // session:${token}
	tokenPrefix   = "sk-nrvro-"
	timeFormat    = "2006-01-02 15:04:05"
)

// SessionManager keeps logged-in principals in redis. When auth is disabled
// (demo deployments) principals come from request headers instead.
type SessionManager struct {
	enabled         bool
	redis           *redis.Client
	ttl             time.Duration
	tokenHeader     string
	studentIDHeader string
	roleHeader      string
}

func NewSessionManager(config *Config) (*SessionManager, error) {
	sm := &SessionManager{
		enabled:         config.Server.EnableAuth,
		ttl:             time.Duration(config.Auth.SessionTTLHours) * time.Hour,
		tokenHeader:     config.Auth.TokenHeader,
		studentIDHeader: config.Auth.StudentIDHeader,
		roleHeader:      config.Auth.RoleHeader,
	}
	if !sm.enabled {
		return sm, nil
	}

	opt, err := redis.ParseURL(config.Auth.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	sm.redis = client
	return sm, nil
}

func (sm *SessionManager) Close() error {
	if sm.redis != nil {
		return sm.redis.Close()
	}
	return nil
}

func generateToken() (string, error) {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return tokenPrefix + hex.EncodeToString(randomBytes), nil
}

// Create stores a new session for the user and returns its token.
func (sm *SessionManager) Create(ctx context.Context, user *models.User) (string, error) {
	if !sm.enabled {
		return "", fmt.Errorf("auth is disabled")
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	key := fmt.Sprintf(sessionKeyTpl, token)
	now := time.Now().UTC()

	pipe := sm.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":          user.ID,
		"username":         user.Username,
		"role":             string(user.Role),
		"section":          user.Section,
		"display_name":     user.DisplayName,
		"request_count":    0,
		"created_dttm_utc": now.Format(timeFormat),
	})
	pipe.Expire(ctx, key, sm.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return token, nil
}

// Principal resolves a session token back into a user.
func (sm *SessionManager) Principal(ctx context.Context, token string) (*models.User, error) {
	key := fmt.Sprintf(sessionKeyTpl, token)

	fields, err := sm.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		logger.Debug.Printf("Session not found for key: %s", key)
		return nil, fmt.Errorf("session not found")
	}

	if err := sm.redis.HIncrBy(ctx, key, "request_count", 1).Err(); err != nil {
		logger.Debug.Printf("Failed to bump session counter: %v", err)
	}

	role, err := models.ParseRole(fields["role"])
	if err != nil {
		role = models.RoleOther
	}

	return &models.User{
		ID:          fields["user_id"],
		Username:    fields["username"],
		Role:        role,
		Section:     fields["section"],
		DisplayName: fields["display_name"],
	}, nil
}

// Destroy drops a session.
func (sm *SessionManager) Destroy(ctx context.Context, token string) error {
	if !sm.enabled {
		return nil
	}
	key := fmt.Sprintf(sessionKeyTpl, token)
	return sm.redis.Del(ctx, key).Err()
}

// FromRequest extracts the principal for an incoming request. With auth
// disabled the principal is assembled from demo headers.
func (sm *SessionManager) FromRequest(r *http.Request) (*models.User, error) {
	if !sm.enabled {
		id := r.Header.Get(sm.studentIDHeader)
		if id == "" {
			return nil, fmt.Errorf("no principal header %s", sm.studentIDHeader)
		}
		role, err := models.ParseRole(r.Header.Get(sm.roleHeader))
		if err != nil {
			role = models.RoleStudent
		}
		return &models.User{
			ID:          id,
			Username:    id,
			Role:        role,
			DisplayName: id,
		}, nil
	}

	authHeader := r.Header.Get(sm.tokenHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	return sm.Principal(r.Context(), token)
}

// BearerToken returns the raw session token from a request, for logout.
func (sm *SessionManager) BearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get(sm.tokenHeader), "Bearer ")
}
