package plugins

import (
	"context"
	"time"
)

// Noop returns the no-operation plugin used for demo and seeded devices.
// It performs no device I/O and reports an empty configuration.
func Noop() *Plugin {
	return &Plugin{
		Key:          "noop",
		FriendlyName: "No Operation",
		Description:  "Skips backup execution and returns empty content (used for demo devices).",
		Collect: func(ctx context.Context, cfg Config) (*Result, error) {
			empty := ""
			return &Result{
				Status:       "success",
				Timestamp:    time.Now().UTC(),
				Log:          []string{"noop: nothing collected"},
				DeviceConfig: &empty,
			}, nil
		},
	}
}
