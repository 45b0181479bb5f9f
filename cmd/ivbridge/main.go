// ivbridge converts values through an embedded interpreter using the
// registered conversion backends.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/richinsley/ivbridge"
)

func main() {
	if err := newRootCmd(ivbridge.DefaultRegistry).Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	registry   *ivbridge.Registry
	configPath string
	backend    string
	logLevel   string
	format     string

	cfg      *ivbridge.Config
	logger   *slog.Logger
	selected *ivbridge.Backend
}

func newRootCmd(reg *ivbridge.Registry) *cobra.Command {
	a := &app{registry: reg}

	root := &cobra.Command{
		Use:          "ivbridge",
		Short:        "Exchange values with an embedded interpreter",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "conversion backend to select (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&a.format, "format", "auto", "output format: yaml, msgpack, or auto (yaml on a terminal)")

	root.AddCommand(
		a.backendsCmd(),
		a.roundtripCmd(),
		a.evalCmd(),
		a.inspectCmd(),
		a.decodeCmd(),
		a.benchCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg := ivbridge.DefaultConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = ivbridge.LoadConfig(a.configPath); err != nil {
			return err
		}
	}
	if a.backend != "" {
		cfg.Backend = ivbridge.BackendID(a.backend)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	ivbridge.SetLogger(a.logger)
	return nil
}

// selectBackend binds the configured backend. Commands that only list
// backends skip it.
func (a *app) selectBackend() (*ivbridge.Backend, error) {
	if a.selected != nil {
		return a.selected, nil
	}
	b, err := a.registry.Select(a.cfg.Backend)
	if err != nil {
		return nil, err
	}
	a.selected = b
	return b, nil
}

func (a *app) openSession(name string) (*ivbridge.Session, error) {
	b, err := a.selectBackend()
	if err != nil {
		return nil, err
	}
	return ivbridge.NewSession(ivbridge.NewInterpreter(a.cfg.InterpreterOptions(name, a.logger)), b), nil
}

func (a *app) backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered conversion backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			active := a.registry.Active()
			for _, b := range a.registry.Backends() {
				mark := " "
				if active == b {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-10s v%-6s unknown=%-6s zero-copy=%-5t %s\n",
					mark, b.ID, b.Version, b.Unknown, b.ZeroCopy, b.Description)
			}
			return nil
		},
	}
}

func (a *app) roundtripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roundtrip FILE",
		Short: "Convert a YAML value into the interpreter and back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readValueFile(args[0])
			if err != nil {
				return err
			}
			s, err := a.openSession("roundtrip")
			if err != nil {
				return err
			}
			defer s.Interpreter().Close()

			var back ivbridge.Value
			err = s.Do(func(ctx *ivbridge.Context) error {
				h, err := s.ToHandle(ctx, v)
				if err != nil {
					return err
				}
				defer h.Release()
				back, err = s.ToValue(ctx, h)
				return err
			})
			if err != nil {
				return err
			}
			if live := s.Interpreter().LiveObjects(); live != 0 {
				return fmt.Errorf("roundtrip left %d live objects", live)
			}
			if !back.Equal(v) {
				return fmt.Errorf("roundtrip mismatch: sent %s, got %s", v, back)
			}
			return a.writeValues(cmd.OutOrStdout(), back)
		},
	}
}

func (a *app) evalCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "eval EXPR",
		Short: "Evaluate an expression and print the converted result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession("eval")
			if err != nil {
				return err
			}
			defer s.Interpreter().Close()
			for _, f := range files {
				src, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				if err := s.Exec(f, string(src)); err != nil {
					return scriptFailure(err)
				}
			}
			v, err := s.Eval(args[0])
			if err != nil {
				return scriptFailure(err)
			}
			return a.writeValues(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringSliceVarP(&files, "load", "l", nil, "script files to execute before evaluating")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Dump the parsed form of a YAML value file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readValueFile(args[0])
			if err != nil {
				return err
			}
			cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", v)
			cfg.Fdump(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (a *app) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE",
		Short: "Print the values of a framed msgpack stream as YAML (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			vs, err := ivbridge.NewFrameReader(r).ReadAll()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), vs...)
		},
	}
}

func (a *app) benchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Run round trips on parallel interpreters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.selectBackend()
			if err != nil {
				return err
			}
			sample, err := benchValue()
			if err != nil {
				return err
			}

			start := time.Now()
			var g errgroup.Group
			for i := 0; i < a.cfg.Interpreters; i++ {
				name := fmt.Sprintf("bench-%d", i)
				g.Go(func() error {
					interp := ivbridge.NewInterpreter(a.cfg.InterpreterOptions(name, a.logger))
					defer interp.Close()
					s := ivbridge.NewSession(interp, b)
					for n := 0; n < a.cfg.Iterations; n++ {
						err := s.Do(func(ctx *ivbridge.Context) error {
							h, err := s.ToHandle(ctx, sample)
							if err != nil {
								return err
							}
							defer h.Release()
							_, err = s.ToValue(ctx, h)
							return err
						})
						if err != nil {
							return fmt.Errorf("%s: iteration %d: %w", name, n, err)
						}
					}
					if live := interp.LiveObjects(); live != 0 {
						return fmt.Errorf("%s: %d live objects after bench", name, live)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			elapsed := time.Since(start)
			total := a.cfg.Interpreters * a.cfg.Iterations
			fmt.Fprintf(cmd.OutOrStdout(), "backend=%s interpreters=%d round_trips=%d elapsed=%s per_round_trip=%s\n",
				b.ID, a.cfg.Interpreters, total, elapsed.Round(time.Microsecond), (elapsed / time.Duration(total)).Round(time.Nanosecond))
			return nil
		},
	}
}

func benchValue() (ivbridge.Value, error) {
	t, err := ivbridge.TensorFromFloat64s([]int{4, 4}, make([]float64, 16))
	if err != nil {
		return ivbridge.Value{}, err
	}
	return ivbridge.StringMapping(map[string]ivbridge.Value{
		"id":      ivbridge.Int(7),
		"scale":   ivbridge.Double(0.5),
		"label":   ivbridge.String("sample"),
		"point":   ivbridge.Tuple(ivbridge.Int(1), ivbridge.Int(2)),
		"weights": ivbridge.TensorValue(t),
		"tags":    ivbridge.List(ivbridge.String("a"), ivbridge.None(), ivbridge.Bool(true)),
	}), nil
}

func readValueFile(path string) (ivbridge.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ivbridge.Value{}, err
	}
	v, err := ivbridge.ParseValueYAML(data)
	if err != nil {
		return ivbridge.Value{}, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// writeValues writes YAML to terminals and framed msgpack otherwise, unless
// --format says which.
func (a *app) writeValues(w io.Writer, vs ...ivbridge.Value) error {
	format := a.format
	if format == "auto" {
		format = "msgpack"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "yaml"
		}
	}
	switch format {
	case "yaml":
		return writeYAML(w, vs...)
	case "msgpack":
		fw := ivbridge.NewFrameWriter(w)
		for _, v := range vs {
			if err := fw.Write(v); err != nil {
				return err
			}
		}
		return fw.Flush()
	}
	return fmt.Errorf("unknown output format %q", a.format)
}

func writeYAML(w io.Writer, vs ...ivbridge.Value) error {
	for i, v := range vs {
		if i > 0 {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		data, err := ivbridge.MarshalValueYAML(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// scriptFailure includes the interpreter traceback in the reported error.
func scriptFailure(err error) error {
	var se *ivbridge.ScriptError
	if errors.As(err, &se) {
		return fmt.Errorf("%s", se.ToString())
	}
	return err
}
