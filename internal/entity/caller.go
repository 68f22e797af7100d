package entity

import (
	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
)

// Caller is an authenticated principal and its grants.
type Caller struct {
	ID string
	// PrivacyFloor is the weakest privacy level the caller may request.
	// Requesting less redaction than the floor is an authorization failure.
	PrivacyFloor constants.PrivacyLevel
	// AllowedTypes restricts which stores the caller may export.
	// Empty means all types.
	AllowedTypes []constants.ExportType
}

// Anonymous is the grant used when authentication is disabled: any export
// type, but only fully-redacted output.
func Anonymous() Caller {
	return Caller{ID: "anonymous", PrivacyFloor: constants.PrivacyLevelStrict}
}

// Authorize checks the request against the caller's grants. Failures wrap
// common.ErrUnauthorized.
func (c Caller) Authorize(req *ExportRequest) error {
	if len(c.AllowedTypes) > 0 {
		allowed := false
		for _, t := range c.AllowedTypes {
			if t == req.ExportType {
				allowed = true
				break
			}
		}
		if !allowed {
			return common.UnauthorizedErrorf("caller %s may not export %s", c.ID, req.ExportType)
		}
	}
	if !req.PrivacyLevel.AtLeastAsStrict(c.PrivacyFloor) {
		return common.UnauthorizedErrorf("caller %s requires privacy level %s or stricter", c.ID, c.PrivacyFloor)
	}
	return nil
}
