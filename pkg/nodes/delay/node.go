// Package delay pauses a branch for a bounded amount of time.
package delay

import (
	"context"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
)

// MaxDelay bounds how long a single delay node may hold a worker.
const MaxDelay = 300 * time.Second

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

// Duration reads "seconds" (number or numeric string) or "duration" (Go duration string)
// from config and caps it at MaxDelay.
func Duration(config map[string]any) (time.Duration, error) {
	var d time.Duration

	if seconds, ok := protocol.Float(config, "seconds"); ok {
		switch ns := seconds * float64(time.Second); {
		case ns > float64(MaxDelay):
			d = MaxDelay
		case ns < 0:
			d = -1
		default:
			d = time.Duration(ns)
		}
	} else if raw := strings.TrimSpace(protocol.String(config, "duration")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return 0, failures.Newf(failures.KindConfiguration, models.NodeTypeDelay, "invalid duration %q", raw)
		}

		d = parsed
	} else {
		return 0, protocol.MissingField(models.NodeTypeDelay, "seconds")
	}

	if d < 0 {
		return 0, failures.New(failures.KindConfiguration, models.NodeTypeDelay, "delay must not be negative")
	}

	return min(d, MaxDelay), nil
}

func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	d, err := Duration(in.Config)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timer := time.NewTimer(d)

	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return map[string]any{"waited_ms": time.Since(start).Milliseconds()}, nil
}
