package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDisplayLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadDisplayLocation(""))
	assert.Equal(t, time.UTC, LoadDisplayLocation("Not/AZone"))

	loc := LoadDisplayLocation("Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", loc.String())
}
