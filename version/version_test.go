package version_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/mini-leebee/leebee/version"
)

func TestDescribe(t *testing.T) {
	got := version.Describe("leebee")
	if !strings.HasPrefix(got, "leebee "+version.VersionOrHash+" ") {
		t.Fatalf("got %q, expected it to start with the program and version", got)
	}
	if !strings.Contains(got, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Fatalf("got %q, expected the platform", got)
	}
	if version.VersionOrHash == "" {
		t.Fatalf("got an empty version")
	}
}
