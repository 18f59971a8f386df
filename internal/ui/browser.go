package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

const (
	osDarwin  = "darwin"
	osWindows = "windows"
	osLinux   = "linux"
)

// OpenBrowser opens url in the user's default browser.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

func browserCommand(goos, url string) (string, []string, error) {
	switch goos {
	case osDarwin:
		return "open", []string{url}, nil
	case osWindows:
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case osLinux, "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}
