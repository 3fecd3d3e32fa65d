package logging

import (
	"net/url"
	"strings"
)

// SanitizeEndpoint removes credentials from a URL or connection string so it
// can be logged: passwords in the user info and sensitive query parameters
// are masked.
func SanitizeEndpoint(endpoint string) string {
	if endpoint == "" || !strings.Contains(endpoint, "://") {
		return endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if shouldRedactKey(key) {
				query.Set(key, "***")
			}
		}
		parsed.RawQuery = query.Encode()
	}

	// url.URL escapes the mask in user info; undo that for readability.
	return strings.Replace(parsed.String(), ":%2A%2A%2A@", ":***@", 1)
}
