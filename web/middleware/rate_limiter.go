package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	AnswersPerMinute int           // Max answer requests per user per minute
	UploadsPerHour   int           // Max document uploads per user per hour
	BurstSize        int           // Allow burst of N requests
	CleanupInterval  time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// UserRateLimiter manages short-window rate limits per user. It protects
// the generation and embedding backends from bursts; the billing-grade
// daily and monthly allowances live in the usage gate, not here.
type UserRateLimiter struct {
	config       RateLimiterConfig
	answerLimits map[uuid.UUID]*TokenBucket
	uploadLimits map[uuid.UUID]*TokenBucket
	mu           sync.RWMutex
	logger       *zap.Logger
	stopCleanup  chan struct{}
}

func NewUserRateLimiter(config RateLimiterConfig, logger *zap.Logger) *UserRateLimiter {
	limiter := &UserRateLimiter{
		config:       config,
		answerLimits: make(map[uuid.UUID]*TokenBucket),
		uploadLimits: make(map[uuid.UUID]*TokenBucket),
		logger:       logger,
		stopCleanup:  make(chan struct{}),
	}

	go limiter.cleanupRoutine()

	return limiter
}

func (url *UserRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(url.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			url.cleanup()
		case <-url.stopCleanup:
			return
		}
	}
}

// cleanup drops all buckets once the map grows large. Buckets refill to
// full within a minute anyway, so losing state is harmless.
func (url *UserRateLimiter) cleanup() {
	url.mu.Lock()
	defer url.mu.Unlock()

	if len(url.answerLimits) > 1000 {
		url.logger.Info("Cleaning up rate limiter cache", zap.Int("answer_limiters", len(url.answerLimits)))
		url.answerLimits = make(map[uuid.UUID]*TokenBucket)
		url.uploadLimits = make(map[uuid.UUID]*TokenBucket)
	}
}

// Stop stops the cleanup routine
func (url *UserRateLimiter) Stop() {
	close(url.stopCleanup)
}

// AllowAnswer checks if an answer request can proceed for the given user
func (url *UserRateLimiter) AllowAnswer(userID uuid.UUID) bool {
	url.mu.Lock()
	bucket, exists := url.answerLimits[userID]
	if !exists {
		refillRate := float64(url.config.AnswersPerMinute) / 60.0
		bucket = NewTokenBucket(float64(url.config.BurstSize), refillRate)
		url.answerLimits[userID] = bucket
	}
	url.mu.Unlock()

	return bucket.Allow()
}

// AllowUpload checks if a document upload can proceed for the given user
func (url *UserRateLimiter) AllowUpload(userID uuid.UUID) bool {
	url.mu.Lock()
	bucket, exists := url.uploadLimits[userID]
	if !exists {
		refillRate := float64(url.config.UploadsPerHour) / 3600.0
		bucket = NewTokenBucket(float64(url.config.UploadsPerHour), refillRate)
		url.uploadLimits[userID] = bucket
	}
	url.mu.Unlock()

	return bucket.Allow()
}

// GetAnswerLimit returns remaining answer tokens for a user
func (url *UserRateLimiter) GetAnswerLimit(userID uuid.UUID) (remaining int, limit int) {
	url.mu.RLock()
	bucket, exists := url.answerLimits[userID]
	url.mu.RUnlock()

	if !exists {
		return url.config.BurstSize, url.config.BurstSize
	}
	return bucket.Remaining(), url.config.BurstSize
}

// RateLimitMiddleware creates a Gin middleware for rate limiting
func RateLimitMiddleware(limiter *UserRateLimiter, limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			// Identity middleware should run before this
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity not initialized"})
			return
		}

		var allowed bool
		var remaining, limit int

		switch limitType {
		case "answer":
			allowed = limiter.AllowAnswer(userID)
			remaining, limit = limiter.GetAnswerLimit(userID)
		case "upload":
			allowed = limiter.AllowUpload(userID)
			remaining, limit = limiter.config.UploadsPerHour, limiter.config.UploadsPerHour
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown limit type"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			limiter.logger.Warn("Rate limit exceeded",
				zap.String("user_id", userID.String()),
				zap.String("limit_type", limitType),
				zap.Int("limit", limit))

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
