package gitcache

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// scpLike matches the short ssh form user@host:path.
var scpLike = regexp.MustCompile(`^(?:([^@/:]+)@)?([^@/:]{2,}):(.+)$`)

func parseRepoURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		if m := scpLike.FindStringSubmatch(raw); m != nil {
			user := ""
			if m[1] != "" {
				user = m[1] + "@"
			}
			raw = fmt.Sprintf("ssh://%s%s/%s", user, m[2], strings.TrimPrefix(m[3], "/"))
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsableURL, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnparsableURL, raw)
	}
	return u, nil
}

// NormalizeURL maps a repository URL to a relative path made of the URL's
// domain followed by its path segments, with the extension of the last
// segment removed. URLs that differ only by a trailing ".git" normalize to
// the same path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := parseRepoURL(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || net.ParseIP(host) != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingDomain, rawURL)
	}

	parts := []string{host}
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: %s: relative path segment", ErrUnparsableURL, rawURL)
		}
		parts = append(parts, seg)
	}
	if len(parts) == 1 {
		return "", fmt.Errorf("%w: %s: no repository path", ErrUnparsableURL, rawURL)
	}

	last := parts[len(parts)-1]
	if ext := filepath.Ext(last); ext != "" && ext != last {
		parts[len(parts)-1] = strings.TrimSuffix(last, ext)
	}
	return filepath.Join(parts...), nil
}
