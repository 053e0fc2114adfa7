package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Run using
//  go run ./cmd/merkledb <command> <flags>

var (
	configFlag = cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file describing the database",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: "storage backend when no config is given: bolt, badger, leveldb or memory",
		Value: "bolt",
	}
	pathFlag = cli.StringFlag{
		Name:  "path",
		Usage: "database file or directory when no config is given",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable debug logging",
	}
)

var commands = []*cli.Command{
	&StateHashCmd,
	&IndexesCmd,
	&StatsCmd,
	&CheckCmd,
	&DumpCmd,
	&ProofCmd,
	&VerifyProofCmd,
	&MigrationsCmd,
	&JournalCmd,
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "merkledb",
		Usage: "inspect and verify merkledb databases",
		Flags: []cli.Flag{
			&configFlag,
			&backendFlag,
			&pathFlag,
			&verboseFlag,
		},
		Commands: commands,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
