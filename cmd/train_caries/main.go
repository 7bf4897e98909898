package main

import "context"
import "flag"
import "os"
import "os/signal"
import "syscall"

import "k8s.io/klog/v2"

import "github.com/neurlang/caries/config"
import "github.com/neurlang/caries/pipeline"

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "yaml config file, defaults are used when empty")
	baseDir := flag.String("basedir", "", "override base_dir from the config")
	epochs := flag.Int("epochs", 0, "override the number of epochs")
	workers := flag.Int("workers", 0, "override the number of workers")
	resume := flag.Bool("resume", false, "resume training from the final model")
	flag.Bool("pgo", false, "enable pgo")
	flag.Parse()
	defer klog.Flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.Fatalf("Config: %v", err)
	}
	if *baseDir != "" {
		cfg.BaseDir = *baseDir
	}
	if *epochs > 0 {
		cfg.Epochs = *epochs
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, pipeline.Options{Resume: *resume})
	if err != nil {
		klog.Fatalf("Training failed: %v", err)
	}
	if best, ok := res.History.Best(); ok {
		klog.Infof("Best val_accuracy %.4f at epoch %d", best.ValAccuracy, best.Epoch)
	}
	klog.Infof("Run %s, logs in %s", res.RunID, cfg.RunLogDir(res.RunID))
}
