package sqltrace

import (
	"net/url"
	"regexp"
	"strings"
)

var portSuffix = regexp.MustCompile(`[,|:]\d+$`)

// userKeys are the connection string keys that may carry the user name,
// checked in order and case-insensitively.
var userKeys = []string{"user id", "username", "user", "userid"}

// secretKeys are dropped from recorded connection strings.
var secretKeys = map[string]bool{"password": true, "pwd": true}

var databaseTypes = []string{
	"sqlserver", "sqlite", "postgresql", "mysql", "firebirdsql", "cosmosdb",
	"oracle", "teradata", "clickhouse", "cockroachdb",
}

var driverAliases = map[string]string{
	"postgres": "postgresql",
	"pgx":      "postgresql",
	"pq":       "postgresql",
	"mssql":    "sqlserver",
	"sqlite3":  "sqlite",
	"godror":   "oracle",
	"oci8":     "oracle",
}

// Command describes one database call.
type Command struct {
	DriverName       string
	DataSource       string
	Database         string
	ServerVersion    string
	ConnectionString string
	CommandText      string
}

// SubsegmentName returns database@datasource with any port removed.
func (c Command) SubsegmentName() string {
	return c.Database + "@" + StripPort(c.DataSource)
}

// StripPort removes a trailing ":1234" or ",1234" port from a data source.
func StripPort(dataSource string) string {
	return portSuffix.ReplaceAllString(dataSource, "")
}

// DatabaseType normalizes a driver name to a database type.
func DatabaseType(driverName string) string {
	name := strings.ToLower(driverName)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if t, ok := driverAliases[name]; ok {
		return t
	}
	for _, t := range databaseTypes {
		if strings.Contains(name, t) {
			return t
		}
	}
	return name
}

// ScrubConnectionString removes credentials from a connection string and
// returns the user it names, if any. Both key=value;... strings and URL
// DSNs are understood.
func ScrubConnectionString(conn string) (scrubbed, user string) {
	if strings.Contains(conn, "://") {
		if u, err := url.Parse(conn); err == nil {
			return scrubURL(u)
		}
	}

	var kept []string
	values := make(map[string]string)
	for _, part := range strings.Split(conn, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		norm := strings.ToLower(strings.TrimSpace(key))
		if secretKeys[norm] {
			continue
		}
		values[norm] = strings.TrimSpace(value)
		kept = append(kept, part)
	}

	for _, k := range userKeys {
		if v, ok := values[k]; ok {
			user = v
			break
		}
	}
	return strings.Join(kept, ";"), user
}

func scrubURL(u *url.URL) (string, string) {
	var user string
	if u.User != nil {
		user = u.User.Username()
		u.User = url.User(user)
	}

	q := u.Query()
	for k := range q {
		if secretKeys[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	if user == "" {
		for _, k := range userKeys {
			if v := q.Get(k); v != "" {
				user = v
				break
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), user
}
