package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldBT := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldBT }()

	Version, GitSHA, BuildTime = "v1.2.3", "abc123", "2026-01-01T00:00:00Z"
	want := "v1.2.3 (commit abc123, built 2026-01-01T00:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
