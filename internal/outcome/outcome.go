package outcome

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// RebuildMarker is printed by the rebuild command once the reinstall
// script has accepted its arguments.
const RebuildMarker = "rebuild_success"

var adminPassPattern = regexp.MustCompile(`Admin Pass: ([a-f0-9-]+)`)

// Install holds the fields extracted from a finished install run.
type Install struct {
	AdminPass string
}

// ExtractInstall scans the accumulated output of an install run for the
// "Admin Pass: <token>" marker. The first match wins. Terminal color
// sequences are stripped before matching so a colored marker still parses.
func ExtractInstall(output string) (Install, bool) {
	m := adminPassPattern.FindStringSubmatch(ansi.Strip(output))
	if m == nil {
		return Install{}, false
	}
	return Install{AdminPass: m[1]}, true
}

// HasRebuildMarker reports whether a rebuild run printed RebuildMarker on
// a line of its own.
func HasRebuildMarker(output string) bool {
	for _, line := range strings.Split(ansi.Strip(output), "\n") {
		if strings.TrimSpace(line) == RebuildMarker {
			return true
		}
	}
	return false
}
