package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wavely/internal/models"
	"wavely/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// ErrNoRedis is returned when rate limiting is attempted without a client.
var ErrNoRedis = errors.New("redis client is nil")

// Rule is a fixed-window budget for one named action.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
}

// Budgets for the write paths of the API.
var (
	SignupRule      = Rule{Name: "signup", Limit: 3, Window: 10 * time.Minute}
	LoginRule       = Rule{Name: "login", Limit: 10, Window: 5 * time.Minute}
	FirebaseRule    = Rule{Name: "firebase_login", Limit: 10, Window: 5 * time.Minute}
	CreateWaveRule  = Rule{Name: "create_wave", Limit: 10, Window: time.Minute}
	CommentRule     = Rule{Name: "create_comment", Limit: 20, Window: time.Minute}
	UploadRule      = Rule{Name: "upload", Limit: 30, Window: time.Hour}
	ProfileImgRule  = Rule{Name: "profile_image", Limit: 10, Window: time.Hour}
	AnimeSearchRule = Rule{Name: "anime_search", Limit: 30, Window: time.Minute}
	WSTicketRule    = Rule{Name: "ws_ticket", Limit: 30, Window: time.Minute}
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per rule and subject in Redis.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewLimiter creates a Limiter. A disabled limiter allows everything.
func NewLimiter(rdb *redis.Client, enabled bool) *Limiter {
	return &Limiter{rdb: rdb, enabled: enabled}
}

func rateKey(rule, subject string) string {
	return fmt.Sprintf("rl:%s:%s", rule, subject)
}

// Allow counts one request by who against rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, who string) (Decision, error) {
	if !l.enabled {
		return Decision{Allowed: true, Remaining: rule.Limit}, nil
	}
	if l.rdb == nil {
		return Decision{}, ErrNoRedis
	}

	key := rateKey(rule.Name, who)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("rate_limit").Inc()
		return Decision{}, err
	}
	if n == 1 {
		l.rdb.Expire(ctx, key, rule.Window)
	}
	reset, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || reset < 0 {
		reset = rule.Window
	}

	count := int(n)
	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= rule.Limit, Remaining: remaining, ResetIn: reset}, nil
}

// subject keys by authenticated user when set, otherwise by remote IP.
func subject(c *fiber.Ctx) string {
	if uid := c.Locals("userID"); uid != nil {
		return fmt.Sprintf("user:%v", uid)
	}
	return "ip:" + c.IP()
}

// Handler enforces rule on a route.
func (l *Limiter) Handler(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := l.Allow(c.UserContext(), rule, subject(c))
		if err != nil {
			if rule.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					"path", c.Path(), "rule", rule.Name, "error", err)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					&models.AppError{Code: models.CodeUnavailable, Message: "rate limit unavailable"})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.ResetIn.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
