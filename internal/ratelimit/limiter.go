package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/mehmetcc/lms/internal/httpx"
	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	GlobalMessage = "Too many requests, please try again later."
	AuthMessage   = "Too many authentication attempts, please try again later."
)

type Options struct {
	// Name labels metrics and prefixes shared counter keys.
	Name    string
	Limit   int
	Window  time.Duration
	Message string
	// Redis is optional; without it counters are kept in process.
	Redis redis.UniversalClient
}

// NewLimiter returns middleware admitting Limit requests per Window per
// client IP, approximated over a sliding window.
func NewLimiter(opts Options, logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	options := []httprate.Option{
		httprate.WithKeyFuncs(keyByClientIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			m.RateLimited(opts.Name)
			logger.Info("rate limited",
				zap.String("limiter", opts.Name),
				zap.String("ip", httpx.ClientIP(r)),
				zap.String("path", r.URL.Path),
			)
			httpx.Fail(w, http.StatusTooManyRequests, httpx.ErrTooManyRequests, opts.Message)
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limiter error", zap.String("limiter", opts.Name), zap.Error(err))
			httpx.FailInternal(w)
		}),
	}
	if opts.Redis != nil {
		options = append(options, httprate.WithLimitCounter(NewRedisCounter(opts.Redis, "lms:ratelimit:"+opts.Name, logger)))
	}
	return httprate.Limit(opts.Limit, opts.Window, options...)
}

func keyByClientIP(r *http.Request) (string, error) {
	return httpx.ClientIP(r), nil
}
