package storage

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// rebind rewrites ? placeholders to $1, $2, ... for drivers that use
// numbered parameters.
func rebind(numbered bool, query string) string {
	if !numbered {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		} else {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "?"
	}
	return strings.Join(ps, ", ")
}

// nullTime maps the zero time to NULL on write.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOf(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}
