// Package urlutil provides URL helpers that preserve original encoding.
package urlutil

import (
	"net/url"
	"strings"
)

// HasHTTPScheme reports whether s starts with http:// or https://, ignoring case.
func HasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ResolveURL resolves a potentially relative reference against a base URL.
// Uses string manipulation to preserve original URL encoding: Go's
// url.ResolveReference re-encodes characters that some CDNs sign verbatim.
// When the base cannot be parsed the result degrades to plain prefixing
// with the base directory.
func ResolveURL(ref string, baseURL string) string {
	if HasHTTPScheme(ref) {
		return ref
	}

	if strings.HasPrefix(ref, "//") {
		if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme != "" {
			return parsed.Scheme + ":" + ref
		}
		return ref
	}

	dir := BaseDirectory(baseURL)

	if strings.HasPrefix(ref, "/") {
		if root := SchemeHost(baseURL); root != "" {
			return root + ref
		}
		return dir + ref
	}

	for strings.HasPrefix(ref, "./") {
		ref = ref[2:]
	}

	if strings.HasPrefix(ref, "../") {
		floor := len(SchemeHost(baseURL)) + 1
		result := dir
		for strings.HasPrefix(ref, "../") {
			ref = ref[3:]
			trimmed := strings.TrimSuffix(result, "/")
			if lastSlash := strings.LastIndex(trimmed, "/"); lastSlash+1 >= floor {
				result = trimmed[:lastSlash+1]
			}
		}
		return result + ref
	}

	return dir + ref
}

// BaseDirectory returns the URL up to and including the last '/' of its path,
// without query string or fragment. A URL with an empty path gets a trailing
// '/'; a string without any '/' yields "".
func BaseDirectory(urlStr string) string {
	if idx := strings.IndexAny(urlStr, "?#"); idx >= 0 {
		urlStr = urlStr[:idx]
	}

	if sep := strings.Index(urlStr, "://"); sep >= 0 {
		if !strings.Contains(urlStr[sep+3:], "/") {
			return urlStr + "/"
		}
	}

	lastSlash := strings.LastIndex(urlStr, "/")
	if lastSlash < 0 {
		return ""
	}
	return urlStr[:lastSlash+1]
}

// SchemeHost extracts scheme://host from a URL, or "" when either is missing.
func SchemeHost(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// IsLoopbackHost covers the usual spellings of the loopback address without a
// DNS lookup.
func IsLoopbackHost(host string) bool {
	switch {
	case strings.EqualFold(host, "localhost"):
		return true
	case host == "127.0.0.1":
		return true
	case host == "::1", host == "[::1]":
		return true
	}
	return false
}
