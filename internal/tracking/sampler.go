package tracking

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"storefront-core/internal/logger"

	"go.uber.org/zap"
)

// Fix is one position reading from the device.
type Fix struct {
	Point
	At time.Time
}

// Sampler produces position fixes until ctx is done or the source runs dry.
// The channel is closed when sampling stops.
type Sampler interface {
	Fixes(ctx context.Context) <-chan Fix
}

// LineSampler reads "lat,lng" lines. Blank lines and lines starting with
// '#' are ignored; malformed lines are logged and skipped.
type LineSampler struct {
	r   io.Reader
	now func() time.Time
}

func NewLineSampler(r io.Reader) *LineSampler {
	return &LineSampler{r: r, now: time.Now}
}

func (s *LineSampler) Fixes(ctx context.Context) <-chan Fix {
	out := make(chan Fix)

	go func() {
		defer close(out)
		log := logger.FromCtx(ctx)

		scanner := bufio.NewScanner(s.r)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}

			p, err := ParsePoint(text)
			if err != nil {
				log.Warn("skipping malformed fix", zap.Int("line", line), zap.Error(err))
				continue
			}

			select {
			case out <- Fix{Point: p, At: s.now()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error("fix source failed", zap.Error(err))
		}
	}()

	return out
}

// ParsePoint parses "lat,lng".
func ParsePoint(s string) (Point, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, ErrMalformedFix
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Point{}, ErrMalformedFix
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return Point{}, ErrMalformedFix
	}

	p := Point{Latitude: lat, Longitude: lng}
	if !p.Valid() {
		return Point{}, ErrOutOfRange
	}
	return p, nil
}
