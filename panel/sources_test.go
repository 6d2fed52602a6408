package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamedSources(t *testing.T) {
	assert.Equal(t, "ilinet", NewILINet("a.csv").Name())
	assert.Contains(t, NewILINet("a.csv").DropLocations, "pr")
	assert.False(t, NewILINet("a.csv").MultiGeo)

	assert.Equal(t, "flusurv", NewFluSurv("a.csv").Name())
	assert.Equal(t, "nhsn", NewNHSN("a.csv").Name())

	// overlapping raw codes across geographies force level-qualified keys
	assert.True(t, NewNSSP("a.csv").MultiGeo)
}
