package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// openers maps a GOOS value to the command that hands a URL or file to the desktop.
var openers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"cmd", "/c", "start"},
}

// OpenerCommand builds the command that would open target on the current platform.
func OpenerCommand(target string) (*exec.Cmd, error) {
	rt := getRuntime()
	argv, ok := openers[rt]
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", rt)
	}
	args := append(append([]string{}, argv[1:]...), target)
	return exec.Command(argv[0], args...), nil
}

// OpenBrowser opens the default system browser at target, a URL or a local file path.
func OpenBrowser(target string) error {
	cmd, err := OpenerCommand(target)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
