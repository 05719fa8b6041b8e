package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"parley/parley/services/identity"
)

// loginCmd signs in through the gateway's OAuth redirect
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the gateway",
	Long: `Opens the gateway's sign-in page in a browser and waits for the
redirect back to a local callback. The session token is kept in the state
directory until logout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if localMode {
			return fmt.Errorf("sign-in is not available with --local")
		}
		out := cmd.OutOrStdout()
		gateway := identity.NewGateway(cfg.GatewayURL, stateStore())
		gateway.OpenURL = func(u string) {
			fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", u)
			_ = openBrowser(u)
		}
		gateway.SignIn(cmd.Context())

		user := gateway.CurrentUser(cmd.Context())
		if user == nil {
			return fmt.Errorf("sign-in did not complete")
		}
		fmt.Fprintf(out, "Signed in as %s\n", user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		gateway := identity.NewGateway(cfg.GatewayURL, stateStore())
		gateway.SignOut(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if localMode {
			fmt.Fprintln(out, "guest (local)")
			return nil
		}
		user := identity.NewGateway(cfg.GatewayURL, stateStore()).CurrentUser(cmd.Context())
		if user == nil {
			fmt.Fprintln(out, "guest")
			return nil
		}
		if user.Name != "" {
			fmt.Fprintf(out, "%s <%s>\n", user.Name, user.Email)
			return nil
		}
		fmt.Fprintln(out, user.Email)
		return nil
	},
}

// openBrowser opens url in the default browser without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
