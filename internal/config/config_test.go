package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBundleTTLBelowUpdateInterval(t *testing.T) {
	c := Default()
	c.UpdateInterval = 1000
	c.BundleTTL = 500
	assert.Error(t, c.Validate(), "bundle_ttl must be >= update_interval")
}

func TestValidateRejectsEmptySharedKey(t *testing.T) {
	c := Default()
	c.SharedKey = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMismatchedGPS(t *testing.T) {
	c := Default()
	lat := 10.0
	c.LocalGPSLat = &lat
	assert.Error(t, c.Validate(), "lat/lon must both be present or both absent")
}

func TestValidateRejectsOutOfRangeGPS(t *testing.T) {
	c := Default()
	lat, lon := 91.0, 0.0
	c.LocalGPSLat = &lat
	c.LocalGPSLon = &lon
	assert.Error(t, c.Validate())
}

func TestHasLocalMetadataAndGPS(t *testing.T) {
	c := Default()
	assert.False(t, c.HasLocalMetadata())
	assert.False(t, c.HasGPS())

	c.LocalMetadataName = "Gateway"
	assert.True(t, c.HasLocalMetadata())

	lat, lon := 1.0, 2.0
	c.LocalGPSLat = &lat
	c.LocalGPSLon = &lon
	assert.True(t, c.HasGPS())
}
