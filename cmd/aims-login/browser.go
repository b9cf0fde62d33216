package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/hashicorp/cap-aims/oidc"
)

// browser is the UIHost which launches the user's default browser.  The
// authorization url is printed as well in case the browser can't be opened.
type browser struct {
	out io.Writer
}

// newUIHost creates the UIHost used by login and logout.  Tests replace it.
var newUIHost = func(out io.Writer) oidc.UIHost { return &browser{out: out} }

func (b *browser) OpenURL(_ context.Context, url string) error {
	fmt.Fprintf(b.out, "Complete the login with your identity provider. Launching browser to:\n\n    %s\n\n", url)
	if err := openURL(url); err != nil {
		fmt.Fprintf(b.out, "Unable to open the browser: %s\nPlease visit the url manually.\n", err)
	}
	return nil
}

// openURL opens the specified URL in the default browser of the user.
// source: https://github.com/hashicorp/vault-plugin-auth-jwt
func openURL(url string) error {
	var cmd string
	var args []string

	switch {
	case "windows" == runtime.GOOS || isWSL():
		cmd = "cmd.exe"
		args = []string{"/c", "start"}
		url = strings.ReplaceAll(url, "&", "^&")
	case "darwin" == runtime.GOOS:
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}

// isWSL tests if the binary is being run in Windows Subsystem for Linux
func isWSL() bool {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
