package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderOffline lets a caller force or refuse the degraded path for one request.
	HeaderOffline = "X-LMS-Offline"
	// HeaderMode reports which connectivity mode served the request.
	HeaderMode = "X-LMS-Mode"

	offlineContextKey = "lms_offline"
)

// OfflineChecker reports the service-wide LMS connectivity verdict.
type OfflineChecker interface {
	IsOffline(ctx context.Context) bool
}

// Connectivity resolves the offline flag once per request. An explicit
// X-LMS-Offline header wins over the probe verdict.
func Connectivity(checker OfflineChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		offline := false
		if explicit, ok := parseOfflineHeader(c.GetHeader(HeaderOffline)); ok {
			offline = explicit
		} else if checker != nil {
			offline = checker.IsOffline(c.Request.Context())
		}

		c.Set(offlineContextKey, offline)
		mode := "online"
		if offline {
			mode = "offline"
		}
		c.Writer.Header().Set(HeaderMode, mode)
		c.Next()
	}
}

// Offline returns the flag resolved by Connectivity, false when it did not run.
func Offline(c *gin.Context) bool {
	if value, exists := c.Get(offlineContextKey); exists {
		if typed, ok := value.(bool); ok {
			return typed
		}
	}
	return false
}

func parseOfflineHeader(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
