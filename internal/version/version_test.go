package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	old := GitCommit
	GitCommit = "abc123"
	defer func() { GitCommit = old }()

	info := Get()
	if info.Version != Version || info.GitCommit != "abc123" {
		t.Errorf("Get() = %+v", info)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("platform = %q", info.Platform)
	}
	if s := info.String(); !strings.HasPrefix(s, "gpionode "+Version) || !strings.Contains(s, "abc123") {
		t.Errorf("String() = %q", s)
	}
}
