// Package config defines the engine's configuration surface. Reading it
// from a file is an external concern this package only partially
// covers: it defines the struct, its defaults, and validation, plus a
// minimal JSON loader for convenience.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServiceNumber constants for the well-known dtnex services.
const (
	ServiceDTNEX = 12160
	ServiceEcho  = 12161
)

// Config is the full set of configuration values the engine accepts.
type Config struct {
	UpdateInterval        int    `json:"update_interval"`
	ContactLifetime       int    `json:"contact_lifetime"`
	ContactTimeTolerance  int    `json:"contact_time_tolerance"`
	BundleTTL             int    `json:"bundle_ttl"`
	SharedKey             string `json:"shared_key"`
	LocalMetadataName     string `json:"local_metadata_name"`
	LocalMetadataContact  string `json:"local_metadata_contact"`
	LocalGPSLat           *float64 `json:"local_gps_lat,omitempty"`
	LocalGPSLon           *float64 `json:"local_gps_lon,omitempty"`
	DisableMetadataExchange bool `json:"disable_metadata_exchange"`
	ServiceNumber         int    `json:"service_number"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		UpdateInterval:       600,
		ContactLifetime:      3600,
		ContactTimeTolerance: 1800,
		BundleTTL:            1800,
		SharedKey:            "open",
		ServiceNumber:        ServiceDTNEX,
	}
}

// Validate checks the configuration's invariants, returning a
// descriptive error on the first violation. A Config failing Validate is
// treated as fatal at startup.
func (c Config) Validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive, got %d", c.UpdateInterval)
	}
	if c.ContactLifetime <= 0 {
		return fmt.Errorf("contact_lifetime must be positive, got %d", c.ContactLifetime)
	}
	if c.ContactTimeTolerance < 0 {
		return fmt.Errorf("contact_time_tolerance must not be negative, got %d", c.ContactTimeTolerance)
	}
	if c.BundleTTL <= 0 {
		return fmt.Errorf("bundle_ttl must be positive, got %d", c.BundleTTL)
	}
	if c.BundleTTL < c.UpdateInterval {
		return fmt.Errorf("bundle_ttl (%d) must be >= update_interval (%d)", c.BundleTTL, c.UpdateInterval)
	}
	if c.SharedKey == "" {
		return fmt.Errorf("shared_key must not be empty")
	}
	if len(c.LocalMetadataName) > 24 {
		return fmt.Errorf("local_metadata_name exceeds 24 bytes")
	}
	if len(c.LocalMetadataContact) > 24 {
		return fmt.Errorf("local_metadata_contact exceeds 24 bytes")
	}
	if (c.LocalGPSLat == nil) != (c.LocalGPSLon == nil) {
		return fmt.Errorf("local_gps_lat and local_gps_lon must both be present or both absent")
	}
	if c.LocalGPSLat != nil {
		if *c.LocalGPSLat < -90 || *c.LocalGPSLat > 90 {
			return fmt.Errorf("local_gps_lat %v out of range", *c.LocalGPSLat)
		}
		if *c.LocalGPSLon < -180 || *c.LocalGPSLon > 180 {
			return fmt.Errorf("local_gps_lon %v out of range", *c.LocalGPSLon)
		}
	}
	if c.ServiceNumber <= 0 || c.ServiceNumber > 65535 {
		return fmt.Errorf("service_number out of range: %d", c.ServiceNumber)
	}
	return nil
}

// HasLocalMetadata reports whether a local descriptor was configured;
// the engine only originates Metadata messages when one exists.
func (c Config) HasLocalMetadata() bool {
	return c.LocalMetadataName != "" || c.LocalMetadataContact != ""
}

// HasGPS reports whether both GPS coordinates are present.
func (c Config) HasGPS() bool {
	return c.LocalGPSLat != nil && c.LocalGPSLon != nil
}

// LoadJSON merges a JSON document at path over Default(). It is a
// convenience for cmd/dtnexd, not a replacement for whatever
// external config-file format a deployment actually uses.
func LoadJSON(path string) (Config, error) {
	c := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
