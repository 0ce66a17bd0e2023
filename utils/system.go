package utils

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

func GetMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	// For info on each, see: https://golang.org/pkg/runtime/#MemStats
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}
	return fmt.Sprintf("Alloc = %v MiB TotalAlloc = %v MiB Sys = %v MiB NumGC = %v",
		bToMb(m.Alloc), bToMb(m.TotalAlloc), bToMb(m.Sys), m.NumGC)
}

// HighWaterMark reads VmHWM (kB) from a /proc status file.
func HighWaterMark(statusFile string) (kB int, err error) {
	var (
		f *os.File
	)
	if f, err = os.Open(statusFile); err != nil {
		return 0, Wrap(ErrIO, "HighWaterMark", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmHWM:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "VmHWM:"))
		if len(fields) == 0 {
			break
		}
		if kB, err = strconv.Atoi(fields[0]); err != nil {
			return 0, Wrap(ErrIO, "HighWaterMark", err)
		}
		return kB, nil
	}
	return 0, NewIOError("HighWaterMark", "no VmHWM entry in %s", statusFile)
}

// PrintMemoryReport prints the high water mark when it can be read; failures
// are reported as warnings only.
func PrintMemoryReport(rank int) {
	if rank != 0 {
		return
	}
	kB, err := HighWaterMark("/proc/self/status")
	if err != nil {
		fmt.Printf("WARNING: memory high water mark unavailable: %v\n", err)
		fmt.Printf("%s\n", GetMemUsage())
		return
	}
	fmt.Printf("Memory high water mark = %8.2f MiB; %s\n", float64(kB)/1024., GetMemUsage())
}
