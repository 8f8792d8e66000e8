package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/pkg/nn/remote"
	"github.com/scenesolver/scenesolver/pkg/videox"
	"github.com/scenesolver/scenesolver/server/analysis"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// analyze runs the incident pipeline on a single local file, and prints the result as JSON
func main() {
	parser := argparse.NewParser("analyze", "Run incident analysis on a local image or video")
	filename := parser.String("i", "input", &argparse.Options{Help: "Image or video file", Required: true})
	inferenceURL := parser.String("", "inference", &argparse.Options{Help: "Model server URL", Default: "http://localhost:8000"})
	contentType := parser.String("t", "type", &argparse.Options{Help: "Mime type of the input (default is from the file extension)", Default: ""})
	stride := parser.Int("s", "stride", &argparse.Options{Help: "Sample every Nth frame of a video", Default: videox.DefaultStride})
	timeout := parser.Int("", "timeout", &argparse.Options{Help: "Timeout in seconds of each model call", Default: 60})
	pretty := parser.Flag("p", "pretty", &argparse.Options{Help: "Pretty print the JSON", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	kind, ct, err := analysis.KindOf(*contentType, *filename)
	check(err)

	services, err := remote.NewServices(logger, *inferenceURL, time.Duration(*timeout)*time.Second)
	check(err)
	defer services.Close()

	analyzer, err := analysis.NewAnalyzer(logger, services, analysis.Options{FrameStride: *stride})
	check(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var media analysis.Media
	if kind == analysis.MediaImage {
		data, err := os.ReadFile(*filename)
		check(err)
		media = &analysis.ImageMedia{Image: nn.Image{Data: data, ContentType: ct}}
	} else {
		media = &analysis.VideoMedia{Filename: *filename, ContentType: ct}
	}

	outcome, err := analyzer.Analyze(ctx, media)
	check(err)
	logger.Infof("%v units processed, %v failed, in %v", outcome.UnitsProcessed, outcome.UnitsFailed, outcome.Duration.Round(time.Millisecond))

	var b []byte
	if *pretty {
		b, err = json.MarshalIndent(outcome.Result, "", "  ")
	} else {
		b, err = json.Marshal(outcome.Result)
	}
	check(err)
	fmt.Println(string(b))
}
