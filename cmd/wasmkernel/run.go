package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmkernel/kernel"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code in a fresh kernel",
	Long: `Execute Python code in a sandboxed kernel and print its result.

Code can be provided via:
  - File argument: wasmkernel run script.py
  - Inline flag: wasmkernel run -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | wasmkernel run

Output is streamed while the code runs. The value of a trailing expression
is printed at the end. Errors print the traceback and exit with status 1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
}

func readSource(cmd *cobra.Command, args []string) (string, error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// No piped input.
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(source) == "" {
		return cmd.Help()
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	k, err := a.startKernel(ctx, a.dialer(rt), kernel.WithStreamHandler(streamPrinter(stdout, stderr)))
	if err != nil {
		return err
	}
	defer k.Dispose()

	execCtx, cancel := context.WithTimeout(ctx, a.cfg.Kernel.ExecuteTimeout)
	defer cancel()

	reply, err := k.Execute(execCtx, kernel.ExecuteRequest{
		Code:   source,
		Header: kernel.NewHeader("execute_request", k.ID()),
	})
	if err != nil {
		return reportError(stderr, err)
	}

	if text, ok := displayText(reply.Data); ok {
		fmt.Fprintln(stdout, text)
	}
	return nil
}

// streamPrinter writes stream notifications to the matching writer.
func streamPrinter(stdout, stderr io.Writer) kernel.StreamHandler {
	return func(s kernel.Stream) {
		if s.Name == kernel.StreamStderr {
			io.WriteString(stderr, s.Text)
			return
		}
		io.WriteString(stdout, s.Text)
	}
}

// displayText picks the representation to print for a result.
func displayText(data map[string]any) (string, bool) {
	for _, mime := range []string{"text/plain", "text/html"} {
		if v, ok := data[mime].(string); ok {
			return v, true
		}
	}
	return "", false
}

// reportError prints the traceback of an execution error and returns an
// error for the exit status.
func reportError(w io.Writer, err error) error {
	var execErr *kernel.ExecutionError
	if !errors.As(err, &execErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("execution timed out")
		}
		return err
	}

	if tb := execErr.Traceback(); len(tb) > 0 {
		fmt.Fprintln(w, strings.Join(tb, "\n"))
	} else {
		fmt.Fprintln(w, execErr.Error())
	}
	return errReported
}
