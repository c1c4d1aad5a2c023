// Package bench measures execution round trips through the kernel.
//
// The in-memory benchmarks isolate the kernel's own overhead and always run.
// The interpreter benchmarks need a Python WASI module:
//
//	WASMKERNEL_BENCH_MODULE=/path/to/python.wasm go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/wasmkernel/hostfunc"
	"github.com/caffeineduck/wasmkernel/kernel"
	"github.com/caffeineduck/wasmkernel/language/python"
	"github.com/caffeineduck/wasmkernel/worker"
	"github.com/caffeineduck/wasmkernel/worker/workertest"
)

const moduleEnv = "WASMKERNEL_BENCH_MODULE"

func moduleLocation(tb testing.TB) string {
	tb.Helper()
	loc := os.Getenv(moduleEnv)
	if loc == "" {
		tb.Skipf("%s not set", moduleEnv)
	}
	return loc
}

func bootKernel(tb testing.TB, dial worker.Dialer) *kernel.Kernel {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	k, err := kernel.New(ctx, dial)
	if err != nil {
		tb.Fatal(err)
	}
	if err := k.WaitReady(ctx); err != nil {
		k.Dispose()
		tb.Fatal(err)
	}
	tb.Cleanup(func() { k.Dispose() })
	return k
}

func wasmKernel(tb testing.TB, opts ...worker.RuntimeOption) *kernel.Kernel {
	tb.Helper()
	loc := moduleLocation(tb)

	rt, err := worker.NewRuntime(context.Background(), opts...)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { rt.Close() })
	return bootKernel(tb, rt.Dialer(loc, python.New()))
}

func execute(tb testing.TB, k *kernel.Kernel, code string) {
	if _, err := k.Execute(context.Background(), kernel.ExecuteRequest{Code: code}); err != nil {
		tb.Fatal(err)
	}
}

// --- Kernel overhead: scripted worker, no interpreter ---

func BenchmarkKernel_Execute(b *testing.B) {
	k := bootKernel(b, workertest.New(workertest.Echo()).Dialer())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, "x=1")
	}
}

func BenchmarkKernel_ExecuteStreams(b *testing.B) {
	ch := workertest.New(func(req worker.Request) []worker.Event {
		return []worker.Event{
			worker.StdoutEvent(req.ID, "1\n"),
			worker.StderrEvent(req.ID, "warn\n"),
			worker.EmptyResultEvent(req.ID),
		}
	})
	k := bootKernel(b, ch.Dialer())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, "print(1)")
	}
}

func BenchmarkKernel_ExecuteParallel(b *testing.B) {
	k := bootKernel(b, workertest.New(workertest.Echo()).Dialer())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := k.Execute(context.Background(), kernel.ExecuteRequest{Code: "x=1"}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// --- Interpreter round trips ---

func BenchmarkWasm_Boot(b *testing.B) {
	loc := moduleLocation(b)
	rt, err := worker.NewRuntime(context.Background(), worker.WithPrecompile(loc))
	if err != nil {
		b.Fatal(err)
	}
	defer rt.Close()
	lang := python.New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		k, err := kernel.New(ctx, rt.Dialer(loc, lang))
		if err == nil {
			err = k.WaitReady(ctx)
			k.Dispose()
		}
		cancel()
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWasm_Execute(b *testing.B) {
	k := wasmKernel(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, "x=1")
	}
}

func BenchmarkWasm_Execute_Print(b *testing.B) {
	k := wasmKernel(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, "print(1)")
	}
}

func BenchmarkWasm_Execute_Computation(b *testing.B) {
	k := wasmKernel(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, "sum(i*i for i in range(1000))")
	}
}

func BenchmarkWasm_Execute_HostFunction(b *testing.B) {
	loc := moduleLocation(b)
	rt, err := worker.NewRuntime(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	defer rt.Close()
	k := bootKernel(b, rt.Dialer(loc, python.New(), worker.WithKV(hostfunc.NewKV(hostfunc.DefaultKVConfig()))))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, k, `kv_set("k", "v")`)
	}
}

func BenchmarkNative_Python(b *testing.B) {
	if _, err := exec.LookPath("python3"); err != nil {
		b.Skip("python3 not available")
	}
	for i := 0; i < b.N; i++ {
		exec.Command("python3", "-c", "x=1").Run()
	}
}

// --- Comparison: human readable output ---

func TestComparison(t *testing.T) {
	loc := moduleLocation(t)

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}
	const runs = 3

	rt, err := worker.NewRuntime(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	bootStart := time.Now()
	k := bootKernel(t, rt.Dialer(loc, python.New()))
	boot := time.Since(bootStart)

	warm := measure(runs, func() { execute(t, k, "print(1)") })

	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Printf("%-24s %10s %10s\n", "Runtime", "Boot", "Execute")
	fmt.Printf("%-24s %10s %10s\n", "wasmkernel (python)", formatDuration(boot), formatDuration(warm))

	if _, err := exec.LookPath("python3"); err == nil {
		native := measure(runs, func() { exec.Command("python3", "-c", "print(1)").Run() })
		fmt.Printf("%-24s %10s %10s\n", "native python3", "-", formatDuration(native))
	}
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	k := wasmKernel(t)
	for i := 0; i < 5; i++ {
		execute(t, k, "print(1)")
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	k.Dispose()
	runtime.GC()
	runtime.ReadMemStats(&m)

	t.Logf("Memory before: %d MB", before/1024/1024)
	t.Logf("Memory after 5 executions: %d MB", after/1024/1024)
	t.Logf("Memory after dispose: %d MB", m.Alloc/1024/1024)
}

// Each iteration builds a fresh runtime, the way separate CLI invocations do.
func TestDiskCacheBenefit(t *testing.T) {
	loc := moduleLocation(t)
	cacheDir := t.TempDir()

	var times []time.Duration
	for i := 0; i < 3; i++ {
		start := time.Now()

		rt, err := worker.NewRuntime(context.Background(), worker.WithDiskCache(cacheDir))
		if err != nil {
			t.Fatal(err)
		}
		k := bootKernel(t, rt.Dialer(loc, python.New()))
		execute(t, k, "print(1)")
		k.Dispose()
		rt.Close()

		times = append(times, time.Since(start))
	}

	for i, d := range times {
		label := "cached"
		if i == 0 {
			label = "compile"
		}
		t.Logf("Call %d (%s): %v", i+1, label, d)
	}
}
