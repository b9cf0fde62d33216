// aims-login is a command line host for the session service: it probes
// servers, logs accounts in with the system browser, and refreshes, revokes
// and inspects their persisted credentials.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
