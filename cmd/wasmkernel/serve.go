package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmkernel/internal/server"
	"github.com/caffeineduck/wasmkernel/kernel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for kernels",
	Long: `Start an HTTP server that hosts kernels.

Endpoints:
  POST   /kernels                    Start a kernel, returns {"kernel_id":"..."}
  GET    /kernels/{id}/info          Kernel info
  POST   /kernels/{id}/execute       Execute {"code":"...","timeout":"10s"}
  POST   /kernels/{id}/complete      Completion (always empty)
  POST   /kernels/{id}/inspect       Not implemented (501)
  POST   /kernels/{id}/is_complete   Not implemented (501)
  POST   /kernels/{id}/comm_info     Not implemented (501)
  POST   /kernels/{id}/input         Not implemented (501)
  DELETE /kernels/{id}               Dispose a kernel
  GET    /health                     Health check

Kernels idle for longer than --kernel-ttl are disposed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Duration("kernel-ttl", 30*time.Minute, "Dispose kernels idle for this long (0 disables)")
	serveCmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	serveCmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	dial := a.dialer(rt)
	factory := func(ctx context.Context, opts ...kernel.Option) (*kernel.Kernel, error) {
		return kernel.New(ctx, dial, a.kernelOptions(opts...)...)
	}

	manager := server.NewManager(factory, a.cfg.Server.KernelTTL, a.logger)
	srv := server.New(manager,
		server.WithBootTimeout(a.cfg.Kernel.BootTimeout),
		server.WithExecuteTimeout(a.cfg.Kernel.ExecuteTimeout),
		server.WithLogger(a.logger),
	)

	a.logger.Info("starting server", "addr", a.cfg.Server.Addr, "kernel_ttl", a.cfg.Server.KernelTTL)
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}
