package contracts

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, DataFormatVersion, info.DataFormat)
	assert.Equal(t, StoreSchemaVersion, info.StoreSchema)
}

func TestVersionStrings(t *testing.T) {
	assert.Equal(t, "dtpanel v"+Version, GetVersionString())

	full := GetFullVersionString()
	assert.True(t, strings.HasPrefix(full, GetVersionString()))
	assert.Contains(t, full, "commit: "+GitCommit)
	assert.Contains(t, full, runtime.GOOS+"/"+runtime.GOARCH)
}
