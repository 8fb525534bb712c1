package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = oldVersion, oldCommit, oldBuild
	}()

	Version = "1.2.3"
	Commit = "abc1234"
	BuildTime = "2026-01-02T03:04:05Z"

	want := "1.2.3 (abc1234) built 2026-01-02T03:04:05Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	oldVersion := Version
	defer func() { Version = oldVersion }()

	Version = "0.4.0"
	if got := UserAgent(); got != "wsclient/0.4.0" {
		t.Errorf("UserAgent() = %q, want %q", got, "wsclient/0.4.0")
	}
}
