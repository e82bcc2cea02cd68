package telemetry

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// UnknownDeviceID is used when the machine identity cannot be resolved in time.
const UnknownDeviceID = "unknown"

// deviceIDMessage matches the message used by the MongoDB CLI tooling so ids join across products.
const deviceIDMessage = "atlascli"

// MachineIDFunc returns the raw, unhashed machine identifier.
type MachineIDFunc func(ctx context.Context) (string, error)

// HostMachineID reads the host identifier via gopsutil.
func HostMachineID(ctx context.Context) (string, error) {
	id, err := host.HostIDWithContext(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("empty host id")
	}
	return id, nil
}

// HashDeviceID keys an HMAC-SHA256 with the upper-cased raw id and returns the hex digest.
func HashDeviceID(raw string) string {
	mac := hmac.New(sha256.New, []byte(strings.ToUpper(raw)))
	mac.Write([]byte(deviceIDMessage))
	return hex.EncodeToString(mac.Sum(nil))
}
