package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

const callerKey = "exportd.caller"

// Authorizer resolves an API token to the caller it belongs to.
type Authorizer interface {
	Authenticate(token string) (entity.Caller, bool)
}

// StaticAuthorizer holds a fixed token table loaded from configuration.
type StaticAuthorizer struct {
	callers map[string]entity.Caller
}

// ParseAPIKeys builds a StaticAuthorizer from the API_KEYS format:
//
//	token:caller:min_privacy_level[:type1|type2],...
//
// The third segment is the weakest privacy level the caller may request;
// the optional fourth restricts which export types the caller can use
// (empty means all).
func ParseAPIKeys(spec string) (*StaticAuthorizer, error) {
	callers := make(map[string]entity.Caller)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("api key entry %q: want token:caller:level[:types]", entry)
		}
		token, callerID := parts[0], parts[1]
		if token == "" || callerID == "" {
			return nil, fmt.Errorf("api key entry %q: empty token or caller", entry)
		}
		floor, ok := constants.ParsePrivacyLevel(parts[2])
		if !ok {
			return nil, fmt.Errorf("api key entry %q: unknown privacy level %q", entry, parts[2])
		}
		caller := entity.Caller{ID: callerID, PrivacyFloor: floor}
		if len(parts) == 4 && parts[3] != "" {
			for _, raw := range strings.Split(parts[3], "|") {
				t, ok := constants.ParseExportType(raw)
				if !ok {
					return nil, fmt.Errorf("api key entry %q: unknown export type %q", entry, raw)
				}
				caller.AllowedTypes = append(caller.AllowedTypes, t)
			}
		}
		if _, dup := callers[token]; dup {
			return nil, fmt.Errorf("api key entry %q: duplicate token", entry)
		}
		callers[token] = caller
	}
	if len(callers) == 0 {
		return nil, fmt.Errorf("no api keys configured")
	}
	return &StaticAuthorizer{callers: callers}, nil
}

func (a *StaticAuthorizer) Authenticate(token string) (entity.Caller, bool) {
	c, ok := a.callers[token]
	return c, ok
}

// AnonymousAuthorizer accepts every request as the anonymous caller, which
// carries a strict privacy floor. Used when no API keys are configured.
type AnonymousAuthorizer struct{}

func (AnonymousAuthorizer) Authenticate(string) (entity.Caller, bool) {
	return entity.Anonymous(), true
}

// authMiddleware rejects requests without a valid API token and stashes
// the resolved caller on the request.
func authMiddleware(auth Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Key")
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		caller, ok := auth.Authenticate(token)
		if !ok {
			msg := "invalid API key"
			if token == "" {
				msg = "missing API key"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(callerKey, caller)
		c.Request = c.Request.WithContext(common.WithCallerID(c.Request.Context(), caller.ID))
		c.Next()
	}
}

func callerFrom(c *gin.Context) entity.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(entity.Caller); ok {
			return caller
		}
	}
	return entity.Anonymous()
}
