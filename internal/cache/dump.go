package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// DumpSep separates key and value on a dump line.
const DumpSep = "@@@@@"

const maxDumpLine = 64 << 20

// Dump writes every entry of s to w as "key@@@@@value" lines and returns the
// number of entries written. Keys that vanish while dumping are skipped.
func Dump(ctx context.Context, s Store, w io.Writer) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("dump: %w", err)
	}
	bw := bufio.NewWriter(w)
	n := 0
	for _, k := range keys {
		v, err := s.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("dump %s: %w", k, err)
		}
		if _, err := fmt.Fprintf(bw, "%s%s%s\n", k, DumpSep, v); err != nil {
			return n, fmt.Errorf("dump: %w", err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("dump: %w", err)
	}
	return n, nil
}

// LoadStats reports what Load did.
type LoadStats struct {
	Loaded  int
	Skipped []int // line numbers without a separator
}

// Load reads lines written by Dump into s, replacing existing entries. A
// negative expire makes the entries sticky, zero uses the store's default TTL.
func Load(ctx context.Context, s Store, r io.Reader, expire time.Duration) (LoadStats, error) {
	var stats LoadStats
	opts := SetOptions{TTL: expire, Replace: true}
	if expire < 0 {
		opts = SetOptions{Sticky: true, Replace: true}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxDumpLine)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		k, v, ok := strings.Cut(text, DumpSep)
		if !ok || k == "" {
			stats.Skipped = append(stats.Skipped, line)
			continue
		}
		if err := s.Set(ctx, k, []byte(v), opts); err != nil {
			return stats, fmt.Errorf("load line %d: %w", line, err)
		}
		stats.Loaded++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("load: %w", err)
	}
	return stats, nil
}
