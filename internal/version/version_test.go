package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrings(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })

	Version, GitCommit, BuildDate = "v1.2.0", "abc1234", "2026-01-01"
	assert.Equal(t, "v1.2.0 (abc1234)", String())
	assert.Equal(t, "v1.2.0 (abc1234) built 2026-01-01 with "+runtime.Version(), Full())
	assert.Equal(t, Info{Version: "v1.2.0", GitCommit: "abc1234", BuildDate: "2026-01-01", GoVersion: runtime.Version()}, GetInfo())
}
