package main

import "flag"
import "fmt"

import "k8s.io/klog/v2"

import "github.com/neurlang/caries/config"
import "github.com/neurlang/caries/datasets/caries"
import "github.com/neurlang/caries/inference"
import "github.com/neurlang/caries/model"

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "yaml config file, defaults are used when empty")
	modelPath := flag.String("model", "", "weights file, the final model from the config by default")
	tflitePath := flag.String("tflite", "", "run the quantized model at this path instead")
	resampler := flag.String("resampler", "", "override the resampler from the config")
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() == 0 {
		klog.Fatalf("Usage: infer_caries [flags] image...")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.Fatalf("Config: %v", err)
	}
	if *resampler != "" {
		cfg.Resampler = *resampler
	}
	rs, err := caries.ParseResampler(cfg.Resampler)
	if err != nil {
		klog.Fatalf("Resampler: %v", err)
	}

	var p inference.Predictor
	if *tflitePath != "" {
		p, err = inference.LoadTFLite(*tflitePath, rs)
	} else {
		if *modelPath == "" {
			*modelPath = cfg.FinalModelPath()
		}
		p, err = inference.Load(*modelPath, model.Options{ImageSize: cfg.ImageSize, DropoutRate: cfg.DropoutRate}, rs)
	}
	if err != nil {
		klog.Fatalf("Load model: %v", err)
	}

	for _, name := range flag.Args() {
		prob, err := inference.PredictFile(p, name)
		if err != nil {
			klog.Errorf("%s: %v", name, err)
			continue
		}
		fmt.Printf("%s\t%.4f\t%v\n", name, prob, inference.IsCaries(prob))
	}
}
