package autostart

import (
	"runtime"
	"strconv"
	"strings"
)

const serviceName = "replisync"

// AutoStarter registers the sync loop to start with the user session.
// args are the positional arguments of the loop command.
type AutoStarter interface {
	Install(execPath string, args []string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ string, _ []string) error {
	return nil
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}

// commandLine quotes every word for a systemd ExecStart line, so paths
// with spaces survive.
func commandLine(execPath string, args []string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, strconv.Quote(execPath))
	for _, a := range args {
		words = append(words, strconv.Quote(a))
	}

	return strings.Join(words, " ")
}
