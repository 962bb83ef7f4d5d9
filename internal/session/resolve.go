package session

import (
	"context"
	"fmt"
	"net"

	"tuyalink/internal/discovery"
	"tuyalink/pkg/tuyaerr"
)

// resolveAddress turns the configured address into a dialable host:port.
// An address of "", "Auto", or "0.0.0.0" means "look it up via
// discovery"; anything else is used as-is.
func resolveAddress(ctx context.Context, disc *discovery.Service, deviceID, address string, port int) (string, error) {
	switch address {
	case "", "Auto", "auto", "0.0.0.0":
		if disc == nil {
			return "", tuyaerr.Wrap(tuyaerr.CodeConnect, "CONNECTION_FAILED",
				fmt.Errorf("no address configured for %s and discovery is disabled", deviceID))
		}
		result, err := disc.Discover(ctx, deviceID)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(result.IP, itoaPort(port)), nil
	default:
		return net.JoinHostPort(address, itoaPort(port)), nil
	}
}

func itoaPort(port int) string {
	return fmt.Sprintf("%d", port)
}
