package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionIsNotEmpty(t *testing.T) {
	assert.NotEmpty(t, Version)
}

func TestVersionFollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		t.Log("Version is 'dev' (development build without ldflags)")
		return
	}
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semverRegex.MatchString(Version),
		"Version should follow semver format, got: %s", Version)
}

func TestStringContainsProgramName(t *testing.T) {
	str := String()
	assert.Contains(t, str, "notegraph")
	assert.Contains(t, str, Version)
	assert.Contains(t, str, "commit")
}

func TestShortReturnsVersionOnly(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfoFields(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, Date, info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGetInfoSerializesToJSON(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var decoded BuildInfo
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, GetInfo(), decoded)
}
