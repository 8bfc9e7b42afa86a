// Package archive locates and opens the exchange's daily continuous-trading
// archives. Files are laid out as <root>/<YYYY>/<MM>/ and each day is a zip
// holding a single CSV whose name is the zip name without its extension.
package archive

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/schema"
)

// MonthDir returns the slash-separated month directory for day, e.g. "2021/03".
func MonthDir(day time.Time) string {
	return day.UTC().Format("2006/01")
}

// Marker returns the substring that identifies day's archive file name.
//
//	Continuous_Orders_DE_20200105   legacy
//	Continuous_Orders-DE-20210105   current
func Marker(v schema.Version, day time.Time) (string, error) {
	stamp := day.UTC().Format("20060102")
	switch v {
	case schema.Legacy:
		return "Continuous_Orders_DE_" + stamp, nil
	case schema.Current:
		return "Continuous_Orders-DE-" + stamp, nil
	default:
		return "", fmt.Errorf("archive: no file marker for %s", v)
	}
}

// pickZip returns the first zip name, in lexical order, containing marker.
// names must already be sorted.
func pickZip(names []string, marker string) (string, bool) {
	for _, n := range names {
		base := path.Base(n)
		if strings.HasSuffix(strings.ToLower(base), ".zip") && strings.Contains(base, marker) {
			return n, true
		}
	}
	return "", false
}

// memberName is the CSV entry expected inside a zip.
func memberName(zipName string) string {
	base := path.Base(zipName)
	return base[:len(base)-len(".zip")]
}
