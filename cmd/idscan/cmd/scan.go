package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
)

// scanCmd scans capture files.
var scanCmd = &cobra.Command{
	Use:   "scan <capture>...",
	Short: "Scan identity document captures into structured fields",
	Long: `Scan one or more capture files and print the extracted fields.

Supported capture formats: JPEG, PNG, GIF, BMP, TIFF, WebP, HEIC/HEIF and
single-page PDF. Captures are scanned one after another; a failed scan is
reported in its result and does not stop the others.

Examples:
  idscan scan front.jpg --tokens front.tokens.json
  idscan scan front.png --format text
  idscan scan a.jpg b.jpg --format csv --output fields.csv`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		format := strings.ToLower(cfg.Output.Format)
		if format == "" {
			format = pipeline.FormatJSON
		}
		switch format {
		case pipeline.FormatJSON, pipeline.FormatText, pipeline.FormatCSV:
		default:
			return fmt.Errorf("unsupported output format: %s", format)
		}

		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		captureFormat, _ := cmd.Flags().GetString("capture-format")
		quiet, _ := cmd.Flags().GetBool("quiet")
		var progress pipeline.ProgressCallback = pipeline.NoOpProgressCallback{}
		if len(args) > 1 && !quiet {
			progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "> ")
		}

		results, err := scanFiles(ctx, p, args, document.ParseFormat(captureFormat), progress)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if cfg.Output.File != "" {
			f, err := os.Create(cfg.Output.File)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		if err := writeResults(out, args, results, format); err != nil {
			return err
		}

		var failed int
		for _, res := range results {
			if res.Status == document.StatusFailed {
				failed++
			}
		}
		if failed == len(results) {
			return fmt.Errorf("all %d scan(s) failed", failed)
		}
		return nil
	},
}

// scanFiles scans paths in order. Unreadable files yield a Failed result.
func scanFiles(ctx context.Context, p *pipeline.Pipeline, paths []string, format document.Format,
	progress pipeline.ProgressCallback,
) ([]*document.ScanResult, error) {
	progress.OnStart(len(paths))
	defer progress.OnComplete()

	results := make([]*document.ScanResult, 0, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			progress.OnError(i+1, name, err)
			results = append(results, pipeline.FailedResult(p.Registry().Generic(), document.NoteDecodeFailed, err))
			continue
		}

		f := format
		if f == document.FormatAuto {
			f = document.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
		}
		capturedAt := time.Now()
		if info, err := os.Stat(path); err == nil {
			capturedAt = info.ModTime()
		}

		res, err := p.Process(ctx, document.NewRawCapture(data, f, capturedAt))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		slog.Debug("Scanned capture", "file", path, "status", res.Status, "template", res.TemplateID)
		progress.OnResult(i+1, len(paths), name, res)
		results = append(results, res)
	}
	return results, nil
}

// writeResults renders results; several captures are labeled by file name.
func writeResults(w io.Writer, paths []string, results []*document.ScanResult, format string) error {
	if len(results) == 1 {
		s, err := pipeline.FormatResult(results[0], format)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, strings.TrimRight(s, "\n")+"\n")
		return err
	}

	if format == pipeline.FormatJSON {
		s, err := pipeline.ToJSONResults(results)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s+"\n")
		return err
	}

	var errs []error
	for i, res := range results {
		s, err := pipeline.FormatResult(res, format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		marker := "=="
		if format == pipeline.FormatCSV {
			marker = "#"
		}
		if i > 0 {
			_, _ = io.WriteString(w, "\n")
		}
		_, _ = fmt.Fprintf(w, "%s %s\n%s\n", marker, paths[i], strings.TrimRight(s, "\n"))
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", pipeline.FormatJSON, "output format (json, text, csv)")
	scanCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	scanCmd.Flags().String("capture-format", "", "capture encoding, detected from extension and content when empty")
	scanCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")

	for _, b := range []struct{ key, flag string }{
		{"output.format", "format"},
		{"output.file", "output"},
	} {
		if err := viper.BindPFlag(b.key, scanCmd.Flags().Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}
