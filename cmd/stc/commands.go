package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mensylisir/stc/compiler"
	"github.com/mensylisir/stc/coordinator"
	"github.com/mensylisir/stc/flow"
	"github.com/mensylisir/stc/hook"
	"github.com/mensylisir/stc/listener"
	"github.com/mensylisir/stc/logger"
	"github.com/mensylisir/stc/scenario"
	"github.com/mensylisir/stc/status"
	"github.com/mensylisir/stc/statusrecord"
	"github.com/mensylisir/stc/stepexec"
)

func newRunCmd() *cobra.Command {
	var from, to []string
	var logRoot string
	var workers int

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Compile and run a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runScenario(args[0], from, to, logRoot, workers)
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", nil, "glob patterns selecting the start of a range run")
	cmd.Flags().StringSliceVar(&to, "to", nil, "glob patterns selecting the end of a range run")
	cmd.Flags().StringVar(&logRoot, "log-root", "", "directory under which per-scenario logs are written")
	cmd.Flags().IntVar(&workers, "workers", 4, "maximum number of steps running concurrently")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Load and compile a scenario without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadAndCompile(args[0], "")
			if err != nil {
				return err
			}
			fmt.Printf("scenario %q is valid: %d steps\n", f.ScenarioName(), len(f.Steps()))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var logRoot string
	cmd := &cobra.Command{
		Use:   "list <scenario-file>",
		Short: "Show every step's status from the last recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRecord(args[0], logRoot, false)
		},
	}
	cmd.Flags().StringVar(&logRoot, "log-root", "", "directory under which per-scenario logs are written")
	return cmd
}

func newListFailedCmd() *cobra.Command {
	var logRoot string
	cmd := &cobra.Command{
		Use:   "listFailed <scenario-file>",
		Short: "Show only the steps that failed in the last recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRecord(args[0], logRoot, true)
		},
	}
	cmd.Flags().StringVar(&logRoot, "log-root", "", "directory under which per-scenario logs are written")
	return cmd
}

func loadAndCompile(path, logRoot string) (*flow.ProcessFlow, error) {
	doc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(doc, compiler.Options{LogRoot: logRoot})
}

func listRecord(path, logRoot string, failedOnly bool) error {
	f, err := loadAndCompile(path, logRoot)
	if err != nil {
		return err
	}
	store := statusrecord.New(f.LogDir())
	events, err := store.Load()
	if err != nil {
		return err
	}

	latest := map[string]statusrecord.Event{}
	for _, ev := range events {
		latest[ev.Step] = ev
	}

	for _, step := range f.Steps() {
		if step.IsGroup {
			continue
		}
		ev, seen := latest[step.Name]
		st := status.Waiting
		if seen {
			st = ev.Status
		}
		if failedOnly && st != status.Failed {
			continue
		}
		fmt.Printf("%-30s %s\n", step.Name, st)
	}
	return nil
}

// runScenario wires together the load/compile/coordinate pipeline for a
// single run and returns the process exit code.
func runScenario(path string, from, to []string, logRoot string, workers int) (int, error) {
	f, err := loadAndCompile(path, logRoot)
	if err != nil {
		return 1, err
	}

	store := statusrecord.New(f.LogDir())
	proc := stepexec.New(nil)
	coord := coordinator.New(f, workers, proc, store)

	if haltOnErrorEnv() {
		coord.SetHaltOnError(true)
	}

	term := listener.NewTerminalListener(os.Stdout, listener.ResolveProfile(os.Getenv("stcColor")))
	coord.AddListener(term)

	if title := os.Getenv("stcTitle"); title != "" {
		fmt.Fprintf(os.Stdout, "\033]0;%s\007", title)
	}

	if len(from) > 0 || len(to) > 0 {
		if err := coord.ResetRange(from, to); err != nil {
			return 1, err
		}
	} else {
		if err := coord.Reset(); err != nil {
			return 1, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			coord.Abort()
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	run := &scenarioRunHook{coord: coord, ctx: ctx, flow: f}
	err = hook.Call(run)
	cancel()

	return run.exitCode, err
}

// scenarioRunHook drives one coordinator run through hook.Call: Try
// starts and waits on the coordinator, Catch surfaces the error as-is,
// and Finally dumps failed steps' logs when stcDumpLogs is set,
// regardless of how the run ended.
type scenarioRunHook struct {
	coord    *coordinator.Coordinator
	ctx      context.Context
	flow     *flow.ProcessFlow
	exitCode int
}

func (r *scenarioRunHook) Try() error {
	r.coord.Start(r.ctx)
	r.exitCode = r.coord.WaitFor()
	if r.exitCode != 0 {
		return fmt.Errorf("scenario %q finished with failures", r.flow.ScenarioName())
	}
	return nil
}

func (r *scenarioRunHook) Catch(err error) error {
	logger.Log.WithField("scenario", r.flow.ScenarioName()).Warn(err.Error())
	return err
}

func (r *scenarioRunHook) Finally() {
	if !dumpLogsEnv() {
		return
	}
	for _, name := range r.flow.TopoOrder() {
		step, ok := r.flow.Step(name)
		if !ok || step.IsGroup {
			continue
		}
		if r.coord.GetStatus(name) != status.Failed {
			continue
		}
		dumpStepLog(r.flow.LogDir(), name)
	}
}

func dumpStepLog(logDir, stepName string) {
	path := logDir + string(os.PathSeparator) + stepName + ".log"
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	fmt.Printf("----- %s -----\n%s\n", stepName, string(data))
}

func haltOnErrorEnv() bool { return truthy(os.Getenv("stcHaltOnError")) }
func dumpLogsEnv() bool    { return truthy(os.Getenv("stcDumpLogs")) }

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
