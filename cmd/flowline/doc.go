// Command flowline is the operator CLI. It talks to a running flowlined
// daemon over the control API to trigger and inspect pipeline runs and to
// evaluate alerts, and provides local configuration utilities.
package main
