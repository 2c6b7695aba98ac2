package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestVersionStrings(t *testing.T) {
	t.Parallel()

	semver := regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	tests := []struct {
		name string
		got  string
		ok   func(string) bool
	}{
		{name: "current is bare semver", got: Current, ok: semver.MatchString},
		{name: "user agent names product and version", got: UserAgent(), ok: func(s string) bool {
			name, ver, found := strings.Cut(s, "/")
			return found && name == "impressum-resolver" && ver == Current
		}},
	}
	for _, tt := range tests {
		if !tt.ok(tt.got) {
			t.Fatalf("%s: unexpected value %q", tt.name, tt.got)
		}
	}
}
