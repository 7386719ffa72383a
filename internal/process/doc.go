// Package process runs short-lived external commands with a bounded runtime.
//
// The agent shells out for two things: driving NetworkManager through nmcli
// during association, and running the configured restart command after a
// reboot directive. Both must never hang the lifecycle loop, so every call
// carries a timeout and the child's process group is killed on expiry.
//
// Example usage:
//
//	runner := process.NewRunner(30 * time.Second)
//	res, err := runner.Run(ctx, "nmcli", "-t", "-f", "GENERAL.STATE", "device", "show", "wlan0")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Stdout)
package process
