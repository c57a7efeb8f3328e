package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/josuedeavila/roadseg"
	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

func main() {
	parser := argparse.NewParser("roadseg", "Data utilities for the road segmentation network")
	debug := parser.Flag("", "debug", &argparse.Options{Help: "Enable debug logging"})

	fetchCmd := parser.NewCommand("fetch", "Download the pretrained VGG model if it is missing")
	fetchData := fetchCmd.String("d", "data", &argparse.Options{Help: "Data directory", Default: "./data"})
	fetchURL := fetchCmd.String("u", "url", &argparse.Options{Help: "Archive URL", Default: roadseg.PretrainedURL})

	batchCmd := parser.NewCommand("batches", "Iterate one shuffled epoch of a training folder")
	batchFolder := batchCmd.String("f", "folder", &argparse.Options{Help: "Folder with image_2 and gt_image_2", Default: "./data/data_road/training"})
	batchHeight := batchCmd.Int("", "height", &argparse.Options{Help: "Resize height", Default: 160})
	batchWidth := batchCmd.Int("", "width", &argparse.Options{Help: "Resize width", Default: 576})
	batchSize := batchCmd.Int("b", "batch", &argparse.Options{Help: "Batch size", Default: 8})

	inferCmd := parser.NewCommand("infer", "Segment the test images and save the overlays")
	inferData := inferCmd.String("d", "data", &argparse.Options{Help: "Data directory", Default: "./data"})
	inferRuns := inferCmd.String("r", "runs", &argparse.Options{Help: "Output root", Default: "./runs"})
	inferModel := inferCmd.String("m", "model", &argparse.Options{Help: "Path to the ONNX export of the network", Required: true})
	inferHeight := inferCmd.Int("", "height", &argparse.Options{Help: "Network input height", Default: 160})
	inferWidth := inferCmd.Int("", "width", &argparse.Options{Help: "Network input width", Default: 576})
	inferLib := inferCmd.String("", "lib", &argparse.Options{Help: "Path to the onnxruntime shared library"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := roadseg.NewLogger("roadseg", *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case fetchCmd.Happened():
		err = fetch(ctx, logger, *fetchData, *fetchURL)
	case batchCmd.Happened():
		err = batches(logger, *batchFolder, roadseg.Shape{Height: *batchHeight, Width: *batchWidth}, *batchSize)
	case inferCmd.Happened():
		shape := roadseg.Shape{Height: *inferHeight, Width: *inferWidth}
		err = infer(ctx, logger, *inferData, *inferRuns, *inferModel, *inferLib, shape)
	}
	if err != nil {
		logger.Errorw("failed", "error", err)
		os.Exit(1)
	}
}

func fetch(ctx context.Context, logger *zap.SugaredLogger, dataDir, url string) error {
	var bar *pterm.ProgressbarPrinter
	progress := func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		if bar == nil {
			bar, _ = pterm.DefaultProgressbar.WithTotal(int(total)).WithTitle("Downloading vgg.zip").Start()
		}
		bar.Add(int(downloaded) - bar.Current)
	}

	downloaded, err := roadseg.MaybeDownloadPretrained(ctx, dataDir, &roadseg.FetchOptions{
		URL:      url,
		Progress: progress,
		Logger:   logger,
	})
	if bar != nil {
		bar.Stop()
	}
	if err != nil {
		return err
	}
	if !downloaded {
		logger.Infow("pretrained model already present", "dir", roadseg.PretrainedDir(dataDir))
	}
	return nil
}

func batches(logger *zap.SugaredLogger, folder string, shape roadseg.Shape, batchSize int) error {
	getBatches := roadseg.GenBatchFunction(folder, shape, &roadseg.BatchOptions{Logger: logger})
	count, total := 0, 0
	for batch, err := range getBatches(batchSize) {
		if err != nil {
			return err
		}
		count++
		total += batch.Len()
		logger.Debugw("batch", "index", count, "size", batch.Len(), "images", batch.Images.Shape(), "labels", batch.Labels.Shape())
	}
	logger.Infow("epoch complete", "batches", count, "images", total)
	return nil
}

func infer(ctx context.Context, logger *zap.SugaredLogger, dataDir, runsDir, modelPath, libPath string, shape roadseg.Shape) error {
	cfg := roadseg.DefaultConfig(modelPath, shape)
	cfg.SharedLibraryPath = libPath
	cfg.Logger = logger

	model, err := roadseg.New(cfg)
	if err != nil {
		return err
	}
	defer roadseg.Shutdown()
	defer model.Close()

	outputDir, err := roadseg.SaveInferenceSamples(ctx, runsDir, dataDir, model, shape, &roadseg.SaveOptions{Logger: logger})
	if err != nil {
		return err
	}
	logger.Infow("done", "output", outputDir)
	return nil
}
