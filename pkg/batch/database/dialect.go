package database

import (
	"strconv"
	"strings"
)

// Rebind は '?' プレースホルダのクエリを接続先の方言に合わせて書き換えます。
// postgres/redshift では $1, $2, ... に変換し、それ以外はそのまま返します。
func Rebind(dialect, query string) string {
	switch strings.ToLower(dialect) {
	case "postgres", "redshift":
	default:
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
