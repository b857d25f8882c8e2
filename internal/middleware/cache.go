package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/resotel/tariff-conventions/internal/config"
)

// cachedResponse is the envelope stored in Redis: enough to replay the
// original response byte for byte, headers included.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// bodyRecorder tees the response body into a buffer while forwarding it
// to the client.  Capture stops at limit bytes; oversized responses are
// served normally but never cached.
type bodyRecorder struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	written   int64
	limit     int64
	truncated bool
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	br.written += int64(len(b))
	if br.limit > 0 && br.written > br.limit {
		br.truncated = true
	} else {
		br.buf.Write(b)
	}
	return br.ResponseWriter.Write(b)
}

// cacheKey hashes the configured request parts under the configured
// prefix.  Hashing keeps long query strings from producing unwieldy
// Redis keys.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()

	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{c.Path()}
	case "method_route":
		parts = []string{r.Method, c.Path()}
	case "method_route_query":
		parts = []string{r.Method, c.Path(), r.URL.RawQuery}
	default: // "route_query"
		parts = []string{c.Path(), r.URL.RawQuery}
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// NewRedisCache returns a middleware that serves successful responses
// of the configured methods from Redis.  Pricing resolution and the
// convention listings are pure reads whose answers only change on a
// convention write, so even a short TTL absorbs the read load that
// reservation pricing generates (one lookup per stay night).  Responses
// replay with their original headers plus X-Cache: HIT or MISS.  With
// caching disabled or no Redis client the middleware is a pass-through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cached cachedResponse
				if json.Unmarshal(raw, &cached) == nil {
					return replay(c, cached)
				}
				// Unreadable entry (format change, corruption); fall
				// through and overwrite it.
			}

			rec := &bodyRecorder{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          int64(cfg.MaxBodyBytes),
			}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if rec.status == http.StatusOK && !rec.truncated {
				cached := cachedResponse{
					Status: rec.status,
					Header: cloneHeader(c.Response().Header()),
					Body:   rec.buf.Bytes(),
				}
				if raw, err := json.Marshal(cached); err == nil {
					// Detached context: the write must not be lost to a
					// client that hung up right after getting its answer.
					_ = rdb.SetEx(context.Background(), key, raw, ttl).Err()
				}
			}
			return nil
		}
	}
}

func replay(c echo.Context, cached cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range cached.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(cached.Status)
	if len(cached.Body) > 0 {
		_, _ = c.Response().Write(cached.Body)
	}
	return nil
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vals := range h {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
