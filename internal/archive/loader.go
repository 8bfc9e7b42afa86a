package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/schema"
)

// Loader reads one day of raw events from a Store.
type Loader struct {
	store  Store
	logger *slog.Logger
}

// NewLoader creates a Loader over store.
func NewLoader(store Store, logger *slog.Logger) *Loader {
	return &Loader{
		store:  store,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// Load returns the admitted raw events for day in file order. A day without
// an archive yields *domain.MissingDataError.
func (l *Loader) Load(ctx context.Context, day time.Time) ([]domain.RawEvent, error) {
	day = domain.Day(day)
	v, err := schema.VersionFor(day)
	if err != nil {
		return nil, err
	}
	marker, err := Marker(v, day)
	if err != nil {
		return nil, err
	}

	dir := MonthDir(day)
	names, err := l.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	zipName, ok := pickZip(names, marker)
	if !ok {
		return nil, &domain.MissingDataError{Day: day, Location: l.store.Describe(dir)}
	}

	start := time.Now()
	data, err := l.readAll(ctx, zipName)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open zip %s: %w", l.store.Describe(zipName), err)
	}
	member, ok := findMember(zr, memberName(zipName))
	if !ok {
		return nil, &domain.MissingDataError{Day: day, Location: l.store.Describe(zipName)}
	}

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	source := l.store.Describe(zipName) + "!" + member.Name
	events, err := schema.Decode(rc, v, source)
	if err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", domain.DateString(day), err)
	}

	l.logger.InfoContext(ctx, "day loaded",
		slog.String("day", domain.DateString(day)),
		slog.String("source", source),
		slog.String("layout", v.String()),
		slog.Int("events", len(events)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return events, nil
}

func (l *Loader) readAll(ctx context.Context, name string) ([]byte, error) {
	rc, err := l.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", l.store.Describe(name), err)
	}
	return data, nil
}

// findMember returns the entry called want, or the only CSV entry when the
// zip was renamed after packing.
func findMember(zr *zip.Reader, want string) (*zip.File, bool) {
	var csvs []*zip.File
	for _, f := range zr.File {
		if f.Name == want {
			return f, true
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			csvs = append(csvs, f)
		}
	}
	if len(csvs) == 1 {
		return csvs[0], true
	}
	return nil, false
}
