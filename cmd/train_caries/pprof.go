package main

import "runtime/pprof"
import "os"
import "os/signal"
import "syscall"

func init() {
	for _, arg := range os.Args {
		if arg == "-pgo" || arg == "--pgo" {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// profile until interrupted, the result feeds go build -pgo
			go func() {
				f, err := os.Create("default.pgo")
				if err != nil {
					return
				}
				pprof.StartCPUProfile(f)
				<-sigChan
				pprof.StopCPUProfile()
				f.Close()

				os.Exit(130)
			}()

			return
		}
	}
}
