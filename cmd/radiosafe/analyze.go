package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/ingest"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/moderation"
	"github.com/Nephrolytics-ai/radiosafe/pkg/playback"
	"github.com/Nephrolytics-ai/radiosafe/pkg/providers"
)

func analyze(ctx context.Context, cfg *config.Config, set *providers.Set, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("analyze", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	speak := flags.Bool("speak", false, "write the spoken summary to a WAV file")
	outputDir := flags.String("out", cfg.OutputDir, "directory for speech files")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("%w: analyze takes exactly one file", errUsage)
	}

	audio, err := model.LoadAudioFile(flags.Arg(0))
	if err != nil {
		return err
	}

	analysisCtx, cancel := context.WithTimeout(ctx, cfg.AnalysisTimeout)
	defer cancel()
	result, _, err := set.Analysis.Analyze(analysisCtx, audio)
	if err != nil {
		return err
	}
	fmt.Fprint(out, moderation.Render(result).Text())

	if !*speak {
		return nil
	}
	return speakSummary(ctx, set.Speech, result, *outputDir, out)
}

func speakSummary(ctx context.Context, speech model.SpeechProvider, result model.AnalysisResult, dir string, out io.Writer) error {
	audio, _, err := speech.Synthesize(ctx, moderation.SummarySpeechText(result))
	if err != nil {
		return err
	}
	if audio == nil {
		fmt.Fprintln(out, "No speech returned for the summary.")
		return nil
	}

	sink := playback.NewWAVSink(dir, false)
	handle, err := playback.NewController(sink).Play(ctx, audio.Audio)
	if err != nil {
		return err
	}
	<-handle.Done()
	if err := handle.Err(); err != nil {
		return err
	}
	for _, path := range sink.Paths() {
		fmt.Fprintf(out, "Summary speech written to %s\n", path)
	}
	return nil
}

func watch(ctx context.Context, cfg *config.Config, set *providers.Set, args []string, out io.Writer) error {
	dir := cfg.WatchDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("%w: watch needs a directory or WATCH_DIR", errUsage)
	}

	watcher := ingest.NewWatcher(dir, set.Analysis, func(_ context.Context, outcome ingest.Outcome) {
		if outcome.Err != nil {
			fmt.Fprintf(out, "== %s\nerror: %v\n", outcome.Path, outcome.Err)
			return
		}
		fmt.Fprintf(out, "== %s\n%s", outcome.Path, outcome.Report.Text())
	}, ingest.WithTimeout(cfg.AnalysisTimeout))
	return watcher.Run(ctx)
}
