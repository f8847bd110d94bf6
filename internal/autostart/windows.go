package autostart

import (
	"fmt"
	"os/exec"
	"strings"
)

const taskName = "ReplisyncMirror"

type WindowsAutoStarter struct{}

func (w *WindowsAutoStarter) Install(execPath string, args []string) error {
	cmd := exec.Command("schtasks", "/create",
		"/TN", taskName,
		"/TR", windowsCommandLine(execPath, args),
		"/SC", "ONLOGON",
		"/F")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	cmd := exec.Command("schtasks", "/DELETE", "/TN", taskName, "/F")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	cmd := exec.Command("schtasks", "/Query", "/TN", taskName)
	if err := cmd.Run(); err != nil {
		return false, nil
	}

	return true, nil
}

func windowsCommandLine(execPath string, args []string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, escapeArg(execPath))
	for _, a := range args {
		words = append(words, escapeArg(a))
	}

	return strings.Join(words, " ")
}

// escapeArg quotes s for CommandLineToArgvW. Backslashes are literal
// unless they precede a double quote. This mirrors syscall.EscapeArg,
// which only builds on windows.
func escapeArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}

	var b strings.Builder
	b.WriteByte('"')

	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}

	// a trailing run would otherwise escape the closing quote
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')

	return b.String()
}
