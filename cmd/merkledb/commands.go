package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andreyvit/merkledb"
	"github.com/urfave/cli/v2"
)

var StateHashCmd = cli.Command{
	Action: doStateHash,
	Name:   "state-hash",
	Usage:  "print the state hash and commit sequence number",
}

var IndexesCmd = cli.Command{
	Action: doIndexes,
	Name:   "indexes",
	Usage:  "list every index with its type, identifier and object hash",
}

var StatsCmd = cli.Command{
	Action: doStats,
	Name:   "stats",
	Usage:  "print per-index key and byte counts",
}

var CheckCmd = cli.Command{
	Action: doCheck,
	Name:   "check",
	Usage:  "recompute the state hash from every index and compare it with the stored one",
}

var DumpCmd = cli.Command{
	Action: doDump,
	Name:   "dump",
	Usage:  "print the contents of every index",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "rows", Usage: "include index rows", Value: true},
		&cli.BoolFlag{Name: "system", Usage: "include reserved indexes and system keys"},
	},
}

var ProofCmd = cli.Command{
	Action:    doProof,
	Name:      "proof",
	Usage:     "write a proof of the given indexes against the state hash",
	ArgsUsage: "<index name>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the binary proof to this file instead of stdout as hex"},
	},
}

var VerifyProofCmd = cli.Command{
	Action:    doVerifyProof,
	Name:      "verify-proof",
	Usage:     "check a binary state proof against a trusted state hash",
	ArgsUsage: "<proof file> <state hash>",
}

var MigrationsCmd = cli.Command{
	Action: doMigrations,
	Name:   "migrations",
	Usage:  "list persisted migration descriptors",
}

var JournalCmd = cli.Command{
	Action:    doJournal,
	Name:      "journal",
	Usage:     "print the merged batches recorded in a journal directory",
	ArgsUsage: "<journal dir>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "ops", Usage: "print every operation, not just counts"},
	},
}

func openDB(c *cli.Context) (*merkledb.DB, error) {
	var cfg *merkledb.Config
	if c.IsSet(configFlag.Name) {
		var err error
		cfg, err = merkledb.LoadConfig(c.String(configFlag.Name))
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &merkledb.Config{
			Backend: c.String(backendFlag.Name),
			Path:    c.String(pathFlag.Name),
		}
	}
	if c.Bool(verboseFlag.Name) {
		cfg.Verbose = true
	}
	return cfg.Open(merkledb.Options{})
}

func withSnapshot(c *cli.Context, fn func(s *merkledb.Snapshot) error) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Read(fn)
}

func doStateHash(c *cli.Context) error {
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		h, err := s.StateHash()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%v\tseq=%d\n", h, s.Seq())
		return nil
	})
}

func doIndexes(c *cli.Context) error {
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		infos, err := s.Indexes()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tTYPE\tID\tHASH")
		for _, info := range infos {
			h := "-"
			if info.Type.IsMerkelized() {
				oh, err := merkledb.ObjectHash(s, info.Addr)
				if err != nil {
					return err
				}
				h = oh.String()
			}
			fmt.Fprintf(w, "%v\t%v\t%d\t%s\n", info.Addr, info.Type, info.Identifier, h)
		}
		return w.Flush()
	})
}

func doStats(c *cli.Context) error {
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		infos, err := s.Indexes()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "ADDRESS\tTYPE\tVALUES\tKEYS\tBYTES\t")
		for _, info := range infos {
			st, err := s.IndexStats(info.Addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%v\t%v\t%d\t%d\t%d\t\n", st.Addr, st.Type, st.Values, st.Keys, st.Bytes)
		}
		return w.Flush()
	})
}

func doCheck(c *cli.Context) error {
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		stored, err := s.StateHash()
		if err != nil {
			return err
		}
		computed, err := merkledb.RecomputeStateHash(s)
		if err != nil {
			return err
		}
		if stored != computed {
			return fmt.Errorf("state hash mismatch at seq %d: stored %v, recomputed %v", s.Seq(), stored, computed)
		}
		fmt.Fprintf(c.App.Writer, "ok %v seq=%d\n", stored, s.Seq())
		return nil
	})
}

func doDump(c *cli.Context) error {
	flags := merkledb.DumpIndexHeaders | merkledb.DumpStats | merkledb.DumpHashes
	if c.Bool("rows") {
		flags |= merkledb.DumpRows
	}
	if c.Bool("system") {
		flags |= merkledb.DumpSystem
	}
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		out, err := s.Dump(flags)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(c.App.Writer, out)
		return err
	})
}

func doProof(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("missing index names")
	}
	return withSnapshot(c, func(s *merkledb.Snapshot) error {
		proof, err := s.StateProof(c.Args().Slice()...)
		if err != nil {
			return err
		}
		raw, err := proof.MarshalBinary()
		if err != nil {
			return err
		}
		if out := c.String("out"); out != "" {
			return os.WriteFile(out, raw, 0o644)
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(raw))
		return nil
	})
}

func doVerifyProof(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected a proof file and a state hash")
	}
	raw, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	trusted, err := merkledb.ParseHash(c.Args().Get(1))
	if err != nil {
		return err
	}
	var proof merkledb.MapProof
	if err := proof.UnmarshalBinary(raw); err != nil {
		return err
	}
	checked, err := proof.Check()
	if err != nil {
		return err
	}
	if err := checked.Verify(trusted); err != nil {
		return err
	}
	for _, e := range checked.Entries {
		fmt.Fprintf(c.App.Writer, "%s\t%x\n", e.Key, e.Value)
	}
	for _, k := range checked.Missing {
		fmt.Fprintf(c.App.Writer, "%s\tabsent\n", k)
	}
	return nil
}

func doMigrations(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()
	list, err := db.Migrations()
	if err != nil {
		return err
	}
	for _, st := range list {
		fmt.Fprintln(c.App.Writer, st.String())
	}
	return nil
}

func doJournal(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("missing journal directory")
	}
	printOps := c.Bool("ops")
	return merkledb.ReplayJournal(c.Args().Get(0), func(seq uint64, b *merkledb.Batch) error {
		fmt.Fprintf(c.App.Writer, "seq %d: %d ops\n", seq, b.Len())
		if printOps {
			for _, op := range b.Ops() {
				fmt.Fprintf(c.App.Writer, "\t%v\n", op)
			}
		}
		return nil
	})
}
