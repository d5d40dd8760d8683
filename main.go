package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "daemon":
			runDaemonCommand(os.Args[2:])
			return
		case "proxy":
			runProxy()
			return
		case "check":
			runCheck()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
			os.Exit(1)
		}
	}
	runCheck()
}

func runDaemonCommand(args []string) {
	if len(args) == 0 {
		runDaemon()
		return
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon %s: %v\n", args[0], err)
		os.Exit(1)
	}
	dc := cfg.DaemonConfig()

	switch args[0] {
	case "status":
		err = daemonStatus(os.Stdout, dc)
	case "stop":
		err = daemonStop(os.Stdout, dc)
	case "restart":
		err = daemonRestart(os.Stdout, dc)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon command: %s\n", args[0])
		os.Exit(1)
	}

	switch {
	case errors.Is(err, errDaemonNotRunning):
		fmt.Println(err)
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "daemon %s: %v\n", args[0], err)
		os.Exit(1)
	}
}
