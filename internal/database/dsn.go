package database

import (
	"fmt"
	"net/url"
	"strings"
)

// withSearchPath adds search_path to a URL or key/value DSN so that every
// pooled connection gets it, not only the first one.
func withSearchPath(dsn, searchPath string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		q.Set("search_path", searchPath)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return strings.TrimSpace(dsn) + " search_path=" + searchPath, nil
}
