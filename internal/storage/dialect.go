package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect hides the few places where sqlite and postgres disagree:
// placeholders and the column type used for timestamps.
type dialect struct {
	name       string
	migration  string
	numbered   bool // $1, $2, ... instead of ?
	unixMillis bool // timestamps stored as INTEGER milliseconds
}

var (
	sqliteDialect   = dialect{name: "sqlite", migration: "migrations/sqlite.sql", unixMillis: true}
	postgresDialect = dialect{name: "postgres", migration: "migrations/postgres.sql", numbered: true}
)

// rebind rewrites ? placeholders for numbered dialects.
// Queries in this package never contain a literal '?'.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) timeArg(t time.Time) any {
	if d.unixMillis {
		return t.UTC().UnixMilli()
	}
	return t.UTC()
}

// timeDest scans any timestamp representation the drivers hand back.
type timeDest struct {
	t        *time.Time
	nullable bool
}

func scanTime(t *time.Time) *timeDest     { return &timeDest{t: t} }
func scanNullTime(t *time.Time) *timeDest { return &timeDest{t: t, nullable: true} }

func (d *timeDest) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		if !d.nullable {
			return fmt.Errorf("storage: unexpected NULL timestamp")
		}
		*d.t = time.Time{}
	case int64:
		*d.t = time.UnixMilli(v).UTC()
	case time.Time:
		*d.t = v.UTC()
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("storage: cannot scan %T into timestamp", src)
	}
	return nil
}

func (d *timeDest) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d.t = time.UnixMilli(ms).UTC()
		return nil
	}
	return fmt.Errorf("storage: bad timestamp %q", s)
}

