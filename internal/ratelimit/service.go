package ratelimit

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tuncerburak97/apilog/internal/config"
)

// Service is a fixed-window limiter keyed by client.
type Service struct {
	config *config.RateLimitConfig
	store  Store
	// KeyFunc identifies the client; defaults to c.IP().
	KeyFunc func(c *fiber.Ctx) string
}

// NewService creates a new rate limiter service
func NewService(cfg *config.RateLimitConfig, store Store) *Service {
	return &Service{
		config:  cfg,
		store:   store,
		KeyFunc: func(c *fiber.Ctx) string { return c.IP() },
	}
}

// NewStore builds the store named by cfg.Storage.Type.
func NewStore(cfg *config.RateLimitConfig) (Store, error) {
	if cfg.Storage.Type == "redis" {
		return NewRedisStore(cfg.Storage.Redis)
	}
	return NewMemoryStore(5 * time.Minute), nil
}

func (s *Service) Allow(c *fiber.Ctx) (*Result, error) {
	if !s.config.Enabled {
		return &Result{Limited: false}, nil
	}

	key := s.KeyFunc(c)
	if s.isWhitelisted(key) {
		return &Result{Limited: false}, nil
	}
	return s.checkLimit(c.UserContext(), "ip:"+key, s.config.Requests, s.config.Window, s.config.Burst)
}

func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) isWhitelisted(ip string) bool {
	for _, whitelistedIP := range s.config.WhiteList {
		if strings.Contains(whitelistedIP, "/") {
			_, ipNet, err := net.ParseCIDR(whitelistedIP)
			if err != nil {
				continue
			}
			if parsed := net.ParseIP(ip); parsed != nil && ipNet.Contains(parsed) {
				return true
			}
		} else if ip == whitelistedIP {
			return true
		}
	}
	return false
}

func (s *Service) checkLimit(ctx context.Context, key string, limit int, window time.Duration, burst int) (*Result, error) {
	count, resetTime, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// If this is a new window
	if !time.Now().Before(resetTime) {
		resetTime = time.Now().Add(window)
		count = 0
	}

	if count >= limit+burst {
		retryAfter := time.Until(resetTime)
		return &Result{
			Limited:    true,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
			LimitHeaders: map[string]string{
				HeaderRateLimit:     strconv.Itoa(limit),
				HeaderRateRemaining: "0",
				HeaderRateReset:     strconv.FormatInt(resetTime.Unix(), 10),
				HeaderRetryAfter:    strconv.FormatInt(int64(retryAfter.Seconds()), 10),
			},
		}, nil
	}

	newCount, err := s.store.Increment(ctx, key, resetTime)
	if err != nil {
		return nil, err
	}

	remaining := limit + burst - newCount
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Limited:   false,
		Remaining: remaining,
		ResetTime: resetTime,
		LimitHeaders: map[string]string{
			HeaderRateLimit:     strconv.Itoa(limit),
			HeaderRateRemaining: strconv.Itoa(remaining),
			HeaderRateReset:     strconv.FormatInt(resetTime.Unix(), 10),
		},
	}, nil
}
