// Command classify trains a classifier described by a
// YAML settings file and reports the metrics of every
// epoch.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/cognoscentai/ali-g/aligexp"
	"github.com/cognoscentai/ali-g/aligmetric"
	"github.com/cognoscentai/ali-g/aligtrain"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
	"github.com/unixpickle/serializer"
)

func main() {
	settingsPath := flag.String("settings", "", "path to YAML settings (defaults if empty)")
	historyPath := flag.String("history", "", "file to save the metric history to")
	dataset := flag.String("dataset", "", "override the dataset")
	epochs := flag.Int("epochs", 0, "override the number of epochs")
	batchSize := flag.Int("batch-size", 0, "override the batch size")
	seed := flag.Int64("seed", 0, "override the random seed")
	opt := flag.String("opt", "", "override the optimizer")
	lr := flag.Float64("lr", 0, "override the learning rate")
	loss := flag.String("loss", "", "override the loss")
	progress := flag.Bool("progress", false, "show a progress bar")
	verbose := flag.Bool("verbose", false, "print every logged metric")
	flag.Parse()

	settings := aligexp.DefaultSettings()
	if *settingsPath != "" {
		var err error
		settings, err = aligexp.Load(*settingsPath)
		if err != nil {
			essentials.Die(err)
		}
	}
	settings.ApplyOverrides(aligexp.Overrides{
		Dataset:   *dataset,
		Epochs:    *epochs,
		BatchSize: *batchSize,
		Seed:      *seed,
		Optimizer: *opt,
		LR:        *lr,
		Loss:      *loss,
		Progress:  *progress,
	})

	history := &aligmetric.History{}
	var recorder aligmetric.Recorder = history
	if *verbose {
		recorder = aligmetric.MultiRecorder{history, &aligmetric.LineRecorder{W: os.Stderr}}
	}

	log.Println("Setting up...")
	session, err := aligexp.Build(settings, recorder)
	if err != nil {
		essentials.Die(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := rip.NewRIP()
	go func() {
		select {
		case <-r.Chan():
			log.Println("Stopping after the current epoch...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Printf("Training %s with %s for %d epochs (ctrl+c to stop)...",
		settings.Dataset, settings.Optimizer.Name, settings.Epochs)
	if err := aligtrain.Run(ctx, session, settings.Epochs); err != nil && err != context.Canceled {
		essentials.Die(err)
	}

	if *historyPath != "" {
		data, err := serializer.SerializeAny(history)
		if err != nil {
			essentials.Die(err)
		}
		if err := os.WriteFile(*historyPath, data, 0644); err != nil {
			essentials.Die(err)
		}
		log.Println("Saved history to", *historyPath)
	}
}
