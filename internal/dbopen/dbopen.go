// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


// Package dbopen resolves database connection strings for the storage
// backends from configuration or the FHIRDB_* environment.
package dbopen

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// EnvPrefix is the prefix of the database environment variables.
const EnvPrefix = "FHIRDB"

// ResolveDSN returns dsn when set, otherwise builds one for backend from
// the FHIRDB_* environment.
func ResolveDSN(backend, dsn string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	url, err := URLFromEnv(backend, EnvPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDatabaseNotConfigured, err)
	}
	return url, nil
}

// URLFromEnv builds a connection string for backend from environment
// variables named PREFIX_*. PREFIX_URL always wins.
//
// postgres and mssql need PREFIX_HOST and PREFIX_DBNAME and read the
// optional PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD and PREFIX_SSLMODE.
// sqlite needs PREFIX_PATH.
func URLFromEnv(backend, prefix string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	if urlStr := os.Getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	switch backend {
	case "postgres":
		return serverURL(prefix, "postgresql", "5432", func(u *url.URL, q url.Values, dbname string) {
			u.Path = dbname
			if sslmode := os.Getenv(prefix + "SSLMODE"); sslmode != "" {
				q.Set("sslmode", sslmode)
			}
			if app := applicationName(); app != "" && q.Get("application_name") == "" {
				q.Set("application_name", app)
			}
		})
	case "mssql":
		return serverURL(prefix, "sqlserver", "1433", func(_ *url.URL, q url.Values, dbname string) {
			q.Set("database", dbname)
			if os.Getenv(prefix+"SSLMODE") == "disable" {
				q.Set("encrypt", "disable")
			}
			if app := applicationName(); app != "" {
				q.Set("app name", app)
			}
		})
	case "sqlite":
		path := os.Getenv(prefix + "PATH")
		if path == "" {
			return "", fmt.Errorf("missing required environment variable(s): %sPATH", prefix)
		}
		return "file:" + path, nil
	default:
		return "", fmt.Errorf("no environment fallback for backend %q", backend)
	}
}

func serverURL(prefix, scheme, defaultPort string, finish func(u *url.URL, q url.Values, dbname string)) (string, error) {
	host := os.Getenv(prefix + "HOST")
	dbname := os.Getenv(prefix + "DBNAME")

	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf(
			"missing required environment variable(s): %s",
			strings.Join(missing, ", "),
		)
	}

	port := os.Getenv(prefix + "PORT")
	if port == "" {
		port = defaultPort
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   host + ":" + port,
	}
	if user := os.Getenv(prefix + "USER"); user != "" {
		if pass := os.Getenv(prefix + "PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	finish(u, q, dbname)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// applicationName derives a connection label from OTEL_SERVICE_NAME,
// keeping only alphanumerics, '-' and '_', capped at 63 bytes.
func applicationName() string {
	name := os.Getenv("OTEL_SERVICE_NAME")
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
