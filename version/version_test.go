package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get("pothole-service")

	assert.Equal(t, "pothole-service", info.Service)
	assert.Equal(t, BuildVersion, info.Version)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"), "GoVersion should look like a Go release, got %q", info.GoVersion)
}

func TestGetOmitsEmptyBuildDetails(t *testing.T) {
	// Test binaries carry no ldflags, so unset fields must not leak
	// empty keys into the health payload
	info := Get("pothole-service")
	info.GitSHA = ""
	info.BuildTime = ""

	data, err := json.Marshal(info)
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "git_sha")
	assert.NotContains(t, string(data), "build_time")
	assert.Contains(t, string(data), `"version"`)
}
