package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/jaki95/draft-builder/config"
	"github.com/jaki95/draft-builder/internal/engine"
	"github.com/jaki95/draft-builder/internal/script"
	"github.com/jaki95/draft-builder/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (optional)")
	scriptPath := flag.String("script", "", "Path to an edit script to run (required)")
	save := flag.Bool("save", true, "Save the draft after running the script")
	exportPath := flag.String("export", "", "Write the resulting draft back out as a script document")
	summarize := flag.Bool("summarize", false, "Print a summary of the resulting draft")
	editorRoot := flag.String("move-to", "", "Copy the saved draft folder into this editor drafts root")
	overwrite := flag.Bool("overwrite", false, "Overwrite an existing draft folder when moving into the editor")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *scriptPath == "" {
		log.Fatal("Missing required flag: -script")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx := context.Background()

	var opts []engine.Option
	if cfg.Upload.Enabled {
		publisher, err := storage.NewGCSPublisher(ctx, cfg.Upload.Bucket, cfg.Upload.ObjectPrefix,
			cfg.Upload.CredentialsFile, cfg.Upload.PublicBaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer publisher.Close()
		opts = append(opts, engine.WithPublisher(publisher))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Fatal(err)
	}
	doc, err := script.Parse(data)
	if err != nil {
		log.Fatal(err)
	}

	result, err := eng.RunScript(ctx, doc)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Draft ID:", result.DraftID)

	if *save {
		saveResult, err := eng.Save(ctx, result.DraftID, newProgressCallback())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("Saved to:", saveResult.Path)
		if saveResult.URL != "" {
			fmt.Println("Published at:", saveResult.URL)
		}
		reportSave(saveResult)
	}

	if *summarize {
		summary, err := eng.Summarize(result.DraftID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(summary)
	}

	if *exportPath != "" {
		exported, err := eng.ExportScript(result.DraftID)
		if err != nil {
			log.Fatal(err)
		}
		out, err := yaml.Marshal(exported)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*exportPath, out, 0644); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Exported script to:", *exportPath)
	}

	if *editorRoot != "" {
		dest, err := eng.MoveIntoEditor(result.DraftID, *editorRoot, *overwrite)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("Moved into editor:", dest)
	}
}

// newProgressCallback renders asset materialization progress on stdout.
// The bar is created lazily because the total is only known once the
// pipeline starts.
func newProgressCallback() func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(
				total,
				progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: ".",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionFullWidth(),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Materializing assets...[reset]"),
			)
		}
		_ = bar.Set(done)
	}
}

func reportSave(result *engine.SaveResult) {
	for _, f := range result.ProbeFailures {
		fmt.Printf("probe failed: %s: %v\n", f.Ref, f.Err)
	}
	for _, f := range result.FetchFailures {
		fmt.Printf("fetch failed: %s: %v\n", f.Ref, f.Err)
	}
	for _, f := range result.KeyframeFailures {
		fmt.Printf("keyframe skipped: %s\n", f.String())
	}
	for _, w := range result.Warnings {
		fmt.Println("warning:", w)
	}
}
