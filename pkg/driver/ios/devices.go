package ios

import (
	"fmt"

	goios "github.com/danielpaulus/go-ios/ios"
)

// Device is an iOS device visible through usbmuxd.
type Device struct {
	UDID           string `json:"udid" yaml:"udid"`
	ConnectionType string `json:"connectionType" yaml:"connectionType"`
	ProductID      int    `json:"productId" yaml:"productId"`
}

// ListDevices lists devices attached over USB or network through usbmuxd.
// Simulators are not listed.
func ListDevices() ([]Device, error) {
	list, err := goios.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list iOS devices: %w", err)
	}
	devices := make([]Device, 0, len(list.DeviceList))
	for _, d := range list.DeviceList {
		devices = append(devices, Device{
			UDID:           d.Properties.SerialNumber,
			ConnectionType: d.Properties.ConnectionType,
			ProductID:      d.Properties.ProductID,
		})
	}
	return devices, nil
}
