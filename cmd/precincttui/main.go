package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/precinct/internal/lock"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/session"
	"github.com/matheus3301/precinct/internal/tui"
	"github.com/matheus3301/precinct/internal/tui/client"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file passed to an auto-started daemon")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)

	if !probeDaemon(socketPath) {
		// A held lock with a dead socket means the daemon is still starting
		// or wedged; spawning another would only fail on the lock.
		holder, held, _ := lock.Probe(session.Dir(sessionName))
		if held {
			fmt.Fprintf(os.Stderr, "daemon for session %q (pid %d) holds the lock, waiting...\n", sessionName, holder.PID)
		} else {
			fmt.Fprintf(os.Stderr, "daemon not running for session %q, starting...\n", sessionName)
			if err := startDaemon(sessionName, *configFlag); err != nil {
				fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
				os.Exit(1)
			}
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	app := tui.NewApp(c, sessionName)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon checks that a daemon answers a status call on the socket.
func probeDaemon(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := rpc.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = rpc.NewSessionClient(conn).Status(ctx, &rpc.StatusRequest{})
	return err == nil
}

func startDaemon(sessionName, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	daemon := filepath.Join(filepath.Dir(executable), "precinctd")
	if _, err := os.Stat(daemon); err != nil {
		daemon = "precinctd"
	}

	args := []string{"--session", sessionName}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(daemon, args...)
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
