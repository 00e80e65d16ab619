// Command storectl inspects and maintains a msgstore database from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/msgstore/internal/config"
	"github.com/and161185/msgstore/internal/migrate"
	"github.com/and161185/msgstore/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `storectl
Usage:
  storectl <cmd> [args]          (connection settings come from STORE_* / .env)

Commands:
  version
  migrate
  register  -key <account> [-code <digits>]
  redeem    -code <digits> [-source <addr>]
  store     -file <stanza.xml|->
  offline   -to <jid> | -from <jid>
  drop      -id <id> [-from <jid>] [-to <jid>]
  presence  -user <jid> [-resource <res>]
  touch     -addr <jid>
  peers
  put       -name <name> -file <path|-> [-mime <type>]
  get       -name <name> [-data]
`)
	os.Exit(2)
}

// main loads configuration from the environment and dispatches one subcommand.
func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]
	if cmd == "version" {
		fmt.Printf("storectl %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fail(err)
	}
	logger := zap.NewNop()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cmd == "migrate" {
		ver, err := migrate.Up(ctx, cfg.DSN(), logger)
		if err != nil {
			fail(err)
		}
		fmt.Printf("schema version %d\n", ver)
		return
	}

	st, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}

	a := &app{st: st, in: os.Stdin, out: os.Stdout}
	err = a.run(ctx, os.Args[1:])
	st.Close()
	switch {
	case errors.Is(err, errUsage):
		usage()
	case err != nil:
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
