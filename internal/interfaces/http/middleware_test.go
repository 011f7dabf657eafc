package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimitByKeyDropsIdleBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(testJWTSecret, nil)
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	m.lastSweep = clock

	r := gin.New()
	r.GET("/x", m.RateLimitByKey(rate.Every(time.Minute), 1, func(c *gin.Context) string {
		return c.Query("k")
	}), func(c *gin.Context) { c.Status(http.StatusOK) })
	hit := func(key string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?k="+key, nil))
		return w.Code
	}

	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, hit("caller-"+time.Duration(i).String()))
	}
	assert.Equal(t, http.StatusTooManyRequests, hit("caller-0s"))
	assert.Len(t, m.rateLimiters, 100)

	clock = clock.Add(limiterIdleTimeout / 2)
	require.Equal(t, http.StatusOK, hit("active"))
	assert.Len(t, m.rateLimiters, 101, "nothing is idle long enough yet")

	clock = clock.Add(limiterIdleTimeout + time.Second)
	require.Equal(t, http.StatusOK, hit("late"))
	assert.Len(t, m.rateLimiters, 1, "only the bucket of this request survives")
	assert.Contains(t, m.rateLimiters, "late")
}
