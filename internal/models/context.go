package models

import (
	"fmt"
	"strings"
)

// Device is the SERP device type.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// SearchContext is the locale a keyword is searched in.
type SearchContext struct {
	LocationCode int    `json:"location_code" yaml:"location_code"`
	LanguageCode string `json:"language_code" yaml:"language_code"`
	Device       Device `json:"device" yaml:"device"`
}

// DefaultSearchContext is United States / English / desktop.
func DefaultSearchContext() SearchContext {
	return SearchContext{
		LocationCode: 2840,
		LanguageCode: "en",
		Device:       DeviceDesktop,
	}
}

// Validate checks that the context can be sent to the remote API.
func (c SearchContext) Validate() error {
	if c.LocationCode <= 0 {
		return fmt.Errorf("invalid location code: %d", c.LocationCode)
	}
	if strings.TrimSpace(c.LanguageCode) == "" {
		return fmt.Errorf("language code is required")
	}
	switch c.Device {
	case DeviceDesktop, DeviceMobile:
	default:
		return fmt.Errorf("invalid device: %q", c.Device)
	}
	return nil
}

// ParseDevice maps user input to a Device, defaulting to desktop.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeviceDesktop:
		return DeviceDesktop, nil
	case DeviceMobile:
		return DeviceMobile, nil
	default:
		return "", fmt.Errorf("invalid device: %q", s)
	}
}
