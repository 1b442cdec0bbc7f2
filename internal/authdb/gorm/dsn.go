package gorm

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// mysqlDSN converts a mysql:// URL into the DSN form the mysql driver
// expects, appending session variables as DSN parameters so they are
// set on every pooled connection.
func mysqlDSN(rawURL string, sessionVars map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse authdb url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("authdb url %q: missing host", rawURL)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", fmt.Errorf("authdb url %q: missing database name", rawURL)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "3306")
	}

	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("charset", "utf8mb4")
	for name, value := range sessionVars {
		params.Set(name, value)
	}

	var sb strings.Builder
	if u.User != nil {
		sb.WriteString(u.User.Username())
		if pass, ok := u.User.Password(); ok {
			sb.WriteString(":")
			sb.WriteString(pass)
		}
		sb.WriteString("@")
	}
	fmt.Fprintf(&sb, "tcp(%s)/%s?%s", host, dbName, params.Encode())
	return sb.String(), nil
}
