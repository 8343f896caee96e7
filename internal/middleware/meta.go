package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"

	// HeaderProvenance tells callers whether a payload is live LMS data or the simulated set.
	HeaderProvenance = "X-Data-Provenance"

	ProvenanceLive      = "live"
	ProvenanceSimulated = "simulated"
)

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetProvenance tags the response as live or simulated. It must run before the body is written.
func SetProvenance(c *gin.Context, simulated bool, reason string) {
	meta := ensureMeta(c)
	meta["simulated"] = simulated
	provenance := ProvenanceLive
	if simulated {
		provenance = ProvenanceSimulated
		if reason != "" {
			meta["simulated_reason"] = reason
		}
	}
	c.Writer.Header().Set(HeaderProvenance, provenance)
}

// SetMeta stores an arbitrary response metadata entry.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	newMeta := make(map[string]interface{})
	if c != nil {
		c.Set(responseMetaKey, newMeta)
	}
	return newMeta
}
