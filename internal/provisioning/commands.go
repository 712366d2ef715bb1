package provisioning

import (
	"fmt"
	"time"

	"github.com/2026musik-code/autoscrip/internal/outcome"
	"github.com/2026musik-code/autoscrip/internal/remote"
)

// InstallCommand normalizes line endings of the uploaded script, marks it
// executable and runs it with DOMAIN and OS_LABEL exported. domain and os
// must already be validated.
func InstallCommand(scriptPath, domain, os string) string {
	p := remote.Quote(scriptPath)
	return fmt.Sprintf(`sed -i 's/\r$//' %s && chmod +x %s && export DOMAIN="%s" && export OS_LABEL="%s" && bash %s`,
		p, p, domain, os, p)
}

const rebuildScriptPath = "/root/reinstall.sh"

// RebuildCommand downloads the reinstall script, hands it the target
// system and new root password, prints the rebuild marker and schedules a
// reboot in the background so the marker reaches the caller first.
func RebuildCommand(scriptURL, targetOS, version, newPassword string, rebootDelay time.Duration) string {
	delay := int(rebootDelay.Seconds())
	if delay < 1 {
		delay = 1
	}
	p := remote.Quote(rebuildScriptPath)
	return fmt.Sprintf(
		`curl -fsSL %s -o %s && bash %s %s %s --password %s && { echo %s; nohup sh -c 'sleep %d; reboot' >/dev/null 2>&1 & }`,
		remote.Quote(scriptURL), p, p, targetOS, version, remote.Quote(newPassword), outcome.RebuildMarker, delay,
	)
}
