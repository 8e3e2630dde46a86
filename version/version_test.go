package version_test

import (
	"testing"

	"eve.evalgo.org/version"
	"github.com/stretchr/testify/assert"
)

func TestGetModuleVersionReturnsDevWithoutVCSTag(t *testing.T) {
	// go test builds binaries without a VCS version stamp, so this is
	// "dev" under `go test` and a real tag only in a released binary.
	v := version.GetModuleVersion()
	assert.Equal(t, "dev", v)
}

func TestGetBuildInfoReportsGoVersion(t *testing.T) {
	info := version.GetBuildInfo()
	assert.NotEmpty(t, info.GoVersion)
}

func TestGetDependencyReturnsNilForUnknownModule(t *testing.T) {
	dep := version.GetDependency("this.module/does-not-exist")
	assert.Nil(t, dep)
}
