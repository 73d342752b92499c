// Package templates holds the HTML pages of the web server as templ
// components. Run `templ generate` after editing a .templ file.
package templates

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/csvrecord/internal/schema"
)

// PreviewRows is how many records a report page shows.
const PreviewRows = 100

// FormatValue renders a converted value for display. Nil is blank.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case pgtype.Date:
		if !x.Valid {
			return ""
		}
		return x.Time.Format("2006-01-02")
	case time.Time:
		return x.Format(time.RFC3339)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func preview(rows []schema.Row) []schema.Row {
	if len(rows) > PreviewRows {
		return rows[:PreviewRows]
	}
	return rows
}

func columnList(s *schema.Schema) string {
	descs := s.Descriptors()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Column()
	}
	return strings.Join(cols, ", ")
}

func reportURL(shape string) templ.SafeURL {
	return templ.URL("/report/" + url.PathEscape(shape))
}
