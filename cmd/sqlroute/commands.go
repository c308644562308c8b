package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute"
	"mit.edu/dsg/sqlroute/config"
	"mit.edu/dsg/sqlroute/logging"
	"mit.edu/dsg/sqlroute/router"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sqlroute",
		Short: "Route SQL through an in-memory query engine",
		Long: `sqlroute runs SQL text, or "execute plan <yaml>" plan descriptions, against an
in-memory catalog and prints each result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newExplainCommand(opts))
	cmd.AddCommand(newShellCommand(opts))
	return cmd
}

func (o *rootOptions) engine() (*sqlroute.Engine, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return sqlroute.New(cfg, logger)
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>...",
		Short: "Run each argument as one request in a single session",
		Example: `  sqlroute exec "create table t (a int primary key)" "insert into t values (1)" "select * from t"
  sqlroute exec "execute plan {op: values, columns: [x], rows: [['1']]}"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Logger.Sync() }()
			sess := e.NewSession()
			defer func() { _ = sess.Close() }()
			for _, sql := range args {
				if err := printResponse(cmd.OutOrStdout(), e.Execute(sess, sql)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newExplainCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <sql>",
		Short: "Show how a single statement or plan description would run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Logger.Sync() }()
			sess := e.NewSession()
			defer func() { _ = sess.Close() }()
			return printResponse(cmd.OutOrStdout(), e.Explain(sess, args[0]))
		},
	}
}

func newShellCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Read requests from standard input, one per line",
		Long: `shell routes every non-empty input line as one request in a single session.
Errors are printed and the shell continues. "quit" or "exit" ends it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Logger.Sync() }()
			sess := e.NewSession()
			defer func() { _ = sess.Close() }()
			return shell(cmd.InOrStdin(), cmd.OutOrStdout(), func(sql string) *router.ResponseBuffer {
				return e.Execute(sess, sql)
			})
		},
	}
}

func shell(in io.Reader, out io.Writer, execute func(string) *router.ResponseBuffer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(strings.TrimSuffix(line, ";")) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		if err := printResponse(out, execute(line)); err != nil {
			fmt.Fprintln(out, "ERROR:", err)
		}
	}
	return scanner.Err()
}

// printResponse writes every event of resp to w. An error event is returned instead.
func printResponse(w io.Writer, resp *router.ResponseBuffer) error {
	for _, ev := range resp.Events {
		switch ev.Kind {
		case router.EventError:
			return ev.Err
		case router.EventOk:
			fmt.Fprintf(w, "Query OK, %d %s affected", ev.Affected, plural(ev.Affected, "row"))
			if ev.LastInsertID != 0 {
				fmt.Fprintf(w, ", last insert id %d", ev.LastInsertID)
			}
			fmt.Fprintln(w)
		case router.EventResultSet:
			table := tablewriter.NewWriter(w)
			table.SetAutoFormatHeaders(false)
			table.SetAutoWrapText(false)
			table.SetHeader(ev.ResultSet.ColumnNames())
			rows := ev.ResultSet.Strings()
			table.AppendBulk(rows)
			table.Render()
			fmt.Fprintf(w, "(%d %s)\n", len(rows), plural(int64(len(rows)), "row"))
		case router.EventProxyShow:
			fmt.Fprintf(w, "forwarded to backend: %s\n", sqlparser.String(ev.Stmt))
		default:
			return errors.AssertionFailedf("unexpected event %s", ev.Kind)
		}
		if ev.HasMore {
			fmt.Fprintln(w, "(more statements ignored)")
		}
	}
	return nil
}

func plural(n int64, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
