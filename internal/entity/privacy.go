package entity

import "github.com/artisthq/exportd/constants"

// Sensitive-field sets per privacy level. Sets are cumulative: a stricter
// level redacts everything the weaker levels redact plus its own additions.
// Matching happens on source field names before mapping, so renaming a
// column can never smuggle a sensitive value past the filter.

var credentialFields = []string{"api_key", "auth_token", "session_token"}
var identityFields = []string{"user_id", "user_email", "ip_address", "host"}
var contentFields = []string{"prompt", "response", "error_message"}

// SensitiveFields returns the set of source field names redacted at the
// given privacy level.
func SensitiveFields(level constants.PrivacyLevel) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(fields []string) {
		for _, f := range fields {
			set[f] = struct{}{}
		}
	}
	// Credentials are redacted at every level, full stop.
	add(credentialFields)
	if level.AtLeastAsStrict(constants.PrivacyLevelInternal) {
		add(identityFields)
	}
	if level.AtLeastAsStrict(constants.PrivacyLevelStrict) {
		add(contentFields)
	}
	return set
}
