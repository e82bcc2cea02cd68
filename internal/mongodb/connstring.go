package mongodb

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

var atlasHost = regexp.MustCompile(`(?i)\.mongodb(-dev|-qa|-stage)?\.net(:\d+)?$`)

// Validate parses uri and reports whether it is a usable connection string.
func Validate(uri string) error {
	if _, err := connstring.ParseAndValidate(uri); err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	return nil
}

// IsAtlasHost reports whether every host in uri belongs to MongoDB Atlas.
func IsAtlasHost(uri string) bool {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil || len(cs.Hosts) == 0 {
		return false
	}
	for _, h := range cs.Hosts {
		if !atlasHost.MatchString(h) {
			return false
		}
	}
	return true
}

// SetAppNameIfMissing adds an appName option to uri unless one is present.
// Atlas deployments get "<appName>-<deviceID>" so connections can be attributed.
func SetAppNameIfMissing(uri, appName, deviceID string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("invalid connection string: %w", err)
	}
	if cs.AppName != "" || appName == "" {
		return uri, nil
	}

	name := appName
	if deviceID != "" && IsAtlasHost(uri) {
		name = appName + "-" + deviceID
	}
	return appendOption(uri, "appName", name), nil
}

// WithCredentials returns uri with its user info replaced by username and password.
func WithCredentials(uri, username, password string) (string, error) {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return "", fmt.Errorf("invalid connection string: missing scheme")
	}
	prefix, rest := uri[:schemeEnd+3], uri[schemeEnd+3:]
	if at := strings.LastIndex(hostSection(rest), "@"); at >= 0 {
		rest = rest[at+1:]
	}
	userinfo := url.UserPassword(username, password).String()
	return prefix + userinfo + "@" + rest, nil
}

// SetOptionIfMissing adds key=value to uri's options unless key is already set.
func SetOptionIfMissing(uri, key, value string) string {
	if i := strings.Index(uri, "?"); i >= 0 {
		if q, err := url.ParseQuery(uri[i+1:]); err == nil {
			for k := range q {
				if strings.EqualFold(k, key) {
					return uri
				}
			}
		}
	}
	return appendOption(uri, key, value)
}

// hostSection returns the part of a scheme-less connection string before the path or options.
func hostSection(rest string) string {
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		return rest[:i]
	}
	return rest
}

func appendOption(uri, key, value string) string {
	option := key + "=" + url.QueryEscape(value)
	if i := strings.Index(uri, "?"); i >= 0 {
		if i == len(uri)-1 || strings.HasSuffix(uri, "&") {
			return uri + option
		}
		return uri + "&" + option
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd >= 0 && !strings.Contains(uri[schemeEnd+3:], "/") {
		uri += "/"
	}
	return uri + "?" + option
}
