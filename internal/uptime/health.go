package uptime

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const stampLayout = "2006-01-02 15:04:05 MST"

// Summary is the 24h / 7d / 30d uptime triple.
type Summary struct {
	Day   float64 `json:"24h"`
	Week  float64 `json:"7d"`
	Month float64 `json:"30d"`
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	for _, w := range []struct {
		hours int
		dst   *float64
	}{{24, &out.Day}, {24 * 7, &out.Week}, {24 * 30, &out.Month}} {
		v, err := s.RollingUptime(ctx, w.hours)
		if err != nil {
			return Summary{}, err
		}
		*w.dst = v
	}
	return out, nil
}

// HealthText is the chat health summary, e.g.
//
//	Maxy health summary
//	24h: 99.31%  •  7d: 99.80%  •  30d: 99.95%
//	Last incident: 2025-03-01 08:00:00 UTC (ended 2025-03-01 08:05:00 UTC)
func (s *Service) HealthText(ctx context.Context, botName string) (string, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return "", err
	}
	inc, err := s.LastIncident(ctx)
	if err != nil {
		return "", err
	}

	var last string
	switch {
	case inc == nil:
		last = "No incidents recorded"
	case inc.End != nil:
		last = fmt.Sprintf("Last incident: %s (ended %s)", stamp(inc.Start), stamp(*inc.End))
	default:
		last = fmt.Sprintf("Ongoing since %s", stamp(inc.Start))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s health summary\n", botName)
	fmt.Fprintf(&b, "24h: %.2f%%  •  7d: %.2f%%  •  30d: %.2f%%\n", sum.Day, sum.Week, sum.Month)
	b.WriteString(last)
	return b.String(), nil
}

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }
