// Command foreman is the local supervisor CLI over the orchestration
// core: project and work-item lifecycle, scheduling, and diagnostics.
// It is a thin client per the core's scope boundary — no natural-
// language parsing and no interactive UI live here.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
