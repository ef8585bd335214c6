package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldBuild := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldBuild })

	assert.Equal(t, "reedgrid dev (unknown, built unknown)", String())

	Version, GitSHA, BuildTime = "0.3.1", "a1b2c3d", "2026-10-01T09:00:00Z"
	assert.Equal(t, "reedgrid 0.3.1 (a1b2c3d, built 2026-10-01T09:00:00Z)", String())
}
