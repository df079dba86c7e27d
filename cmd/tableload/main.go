// Command tableload inserts newline-delimited JSON rows into a table and
// manages the destination table from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tableinsert/internal/application"
	"github.com/JonMunkholm/tableinsert/internal/config"
	"github.com/JonMunkholm/tableinsert/internal/core"
	"github.com/JonMunkholm/tableinsert/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := &cli{}
	if err := c.execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		os.Exit(1)
	}
}

// cli carries the runtime shared by subcommands.
type cli struct {
	envFile string
	out     io.Writer
	rt      *application.Runtime
}

// execute runs the command line in args. The runtime is shut down whether
// or not the command succeeds, so inserts still in flight on the pool are
// drained before the process exits.
func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCommand()
	root.SetArgs(args)
	if c.out != nil {
		root.SetOut(c.out)
	}

	err := root.ExecuteContext(ctx)
	if cerr := c.close(ctx); cerr != nil {
		slog.Warn("inserts did not complete in time", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tableload",
		Short:         "Batched, retrying row inserts",
		Long:          `tableload reads rows as newline-delimited JSON and inserts them in batches, retrying rejected rows with backoff.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Environment file to load if present")

	root.AddCommand(
		c.insertCommand(),
		c.provisionCommand(),
		c.isEmptyCommand(),
	)
	return root
}

func (c *cli) open(ctx context.Context) error {
	// Missing env file is fine; real environment wins over the file
	_ = godotenv.Load(c.envFile)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	rt, err := application.New(ctx, cfg)
	if err != nil {
		return err
	}
	c.rt = rt
	return nil
}

func (c *cli) close(ctx context.Context) error {
	if c.rt == nil {
		return nil
	}
	return c.rt.Shutdown(context.WithoutCancel(ctx))
}

func (c *cli) table(spec string) (core.TableRef, error) {
	if spec == "" {
		return core.TableRef{}, nil
	}
	return core.ParseTableRef(spec, c.rt.DefaultProject)
}

func (c *cli) insertCommand() *cobra.Command {
	var (
		tableSpec string
		file      string
		idMode    string
	)

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert NDJSON rows",
		Long:  `Insert reads one JSON object per line from --file, or stdin when the file is "-", and inserts them into --table or the configured default table.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := c.table(tableSpec)
			if err != nil {
				return err
			}
			mode, err := core.ParseInsertIDMode(idMode)
			if err != nil {
				return err
			}

			in := io.Reader(os.Stdin)
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			rows, err := readRows(in)
			if err != nil {
				return err
			}
			set, err := core.AssignInsertIDs(core.RowSet{Rows: rows}, mode)
			if err != nil {
				return err
			}

			summary, err := c.rt.Inserter.InsertAll(cmd.Context(), ref, set)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVarP(&tableSpec, "table", "t", "", "Destination as [project:]dataset.table; defaults to INSERT_DEFAULT_TABLE")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "NDJSON input file, - for stdin")
	cmd.Flags().StringVar(&idMode, "insert-ids", string(core.InsertIDsNone), "Insert id generation: none, random or content")
	return cmd
}

func (c *cli) provisionCommand() *cobra.Command {
	var (
		write      string
		create     string
		schemaFile string
	)

	cmd := &cobra.Command{
		Use:   "provision [project:]dataset.table",
		Short: "Get or create a table according to write and create dispositions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := c.table(args[0])
			if err != nil {
				return err
			}
			wd, err := core.ParseWriteDisposition(write)
			if err != nil {
				return err
			}
			cd, err := core.ParseCreateDisposition(create)
			if err != nil {
				return err
			}

			var schema *core.Schema
			if schemaFile != "" {
				if schema, err = readSchema(schemaFile); err != nil {
					return err
				}
			}

			table, err := c.rt.Provisioner.GetOrCreateTable(cmd.Context(), ref, wd, cd, schema)
			if err != nil {
				return err
			}
			if table == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "table was created concurrently by another writer")
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&write, "write", string(core.WriteAppend), "Write disposition: WRITE_APPEND, WRITE_TRUNCATE or WRITE_EMPTY")
	cmd.Flags().StringVar(&create, "create", string(core.CreateIfNeeded), "Create disposition: CREATE_IF_NEEDED or CREATE_NEVER")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "JSON schema file, {\"fields\":[...]}")
	return cmd
}

func (c *cli) isEmptyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "is-empty [project:]dataset.table",
		Short: "Report whether a table has no rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := c.table(args[0])
			if err != nil {
				return err
			}
			empty, err := c.rt.Provisioner.IsEmpty(cmd.Context(), ref)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), empty)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
