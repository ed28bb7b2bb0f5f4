package config

import (
	"fmt"
	"strings"
)

// DSN returns a MySQL-compatible data source name. If ConnectionString is
// set, it is used directly with parseTime and loc normalized; otherwise the
// DSN is built from the discrete fields.
func (d *DatabaseConfig) DSN() string {
	var dsn string

	if d.ConnectionString != "" {
		dsn = d.ConnectionString
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
		return dsn
	}

	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

// Configured reports whether any connection target has been supplied.
func (d *DatabaseConfig) Configured() bool {
	return d.ConnectionString != "" || d.Host != ""
}
