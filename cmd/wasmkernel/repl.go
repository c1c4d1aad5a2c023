package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmkernel/kernel"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with persistent state",
	Long: `Start an interactive REPL backed by one kernel.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.wasmkernel_history)")
	replCmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	replCmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
	rootCmd.AddCommand(replCmd)
}

func inPrompt(k *kernel.Kernel) string {
	return fmt.Sprintf("In [%d]: ", k.ExecutionCount()+1)
}

func continuationPrompt(k *kernel.Kernel) string {
	width := len(inPrompt(k)) - len("...: ")
	return strings.Repeat(" ", max(width, 0)) + "...: "
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".wasmkernel_history")
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            inPrompt(k),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(stderr, k.KernelInfo().Banner)
	fmt.Fprintln(stderr, "Type 'exit' to quit, Ctrl+D to exit.")

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(inPrompt(k))
				}
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(continuationPrompt(k))
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			rl.SetPrompt(inPrompt(k))
			continue
		}
		if trimmed == "exit" || trimmed == "quit" {
			return nil
		}

		execCtx, cancel := context.WithTimeout(ctx, a.cfg.Kernel.ExecuteTimeout)
		reply, err := k.Execute(execCtx, kernel.ExecuteRequest{
			Code:   line,
			Header: kernel.NewHeader("execute_request", k.ID()),
		})
		cancel()

		switch {
		case err == nil:
			if text, ok := displayText(reply.Data); ok {
				fmt.Fprintf(stdout, "Out[%d]: %s\n", reply.ExecutionCount, text)
			}
		case errors.Is(err, kernel.ErrWorkerExited), errors.Is(err, kernel.ErrDisposed):
			return err
		default:
			if rerr := reportError(stderr, err); !errors.Is(rerr, errReported) {
				fmt.Fprintf(stderr, "Error: %v\n", rerr)
			}
		}
		rl.SetPrompt(inPrompt(k))
	}
}
