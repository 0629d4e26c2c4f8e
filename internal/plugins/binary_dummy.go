package plugins

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

const dummyFirmwareSize = 1024 * 1024

// BinaryDummy returns a demo plugin that fabricates a firmware-style
// binary blob. It exercises the binary transport path (base64 on the
// wire) without touching a real device.
func BinaryDummy() *Plugin {
	return &Plugin{
		Key:          "binary_dummy",
		FriendlyName: "Binary Dummy (Demo)",
		Description:  "Demo binary backup plugin (1MB dummy firmware). For testing binary backups only.",
		IsBinary:     true,
		Collect: func(ctx context.Context, cfg Config) (*Result, error) {
			if cfg.IP == "" {
				return &Result{
					Status:    "failure",
					Timestamp: time.Now().UTC(),
					Log:       []string{"missing ip address in config"},
				}, nil
			}

			header := append([]byte{0xFF, 0xFE}, []byte("FIRMWARE_HEADER_DEMO")...)
			blob := make([]byte, dummyFirmwareSize)
			copy(blob, header)

			encoded := base64.StdEncoding.EncodeToString(blob)
			return &Result{
				Status:    "success",
				Timestamp: time.Now().UTC(),
				Log: []string{
					fmt.Sprintf("connected to device at %s", cfg.IP),
					fmt.Sprintf("downloaded binary firmware: %d bytes", len(blob)),
					fmt.Sprintf("base64 encoded for transport: %d bytes", len(encoded)),
				},
				DeviceConfig: &encoded,
			}, nil
		},
	}
}
