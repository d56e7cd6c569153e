package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/proofpulse"
	"github.com/menta2k/proofpulse/internal/utils"
	"github.com/menta2k/proofpulse/pkg/presenter"
	"github.com/menta2k/proofpulse/pkg/processing"
	"github.com/menta2k/proofpulse/pkg/types"
)

// scanOptions are the flags of the scan command.
type scanOptions struct {
	area     types.SelectionRect
	pageURL  string
	format   string
	outDir   string
	imgFmt   string
	debug    bool
	analyzer string
	jobs     int
}

// scanResult is the outcome for one source.
type scanResult struct {
	source string
	report presenter.Report
	err    error
}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [screenshot...]",
		Short: "Crop a screenshot and ask the analyzer for a verdict",
		Long: `Scan runs the relay chain on screenshots instead of a live tab: each source is
cropped to the selection and posted to a running analyzer.

A source is an image file (png, jpg, webp), a directory of them, or an
http(s) image URL. The selection is given in CSS pixels together with the
device pixel ratio the screenshot was taken at. Without --width and --height
the whole screenshot is used.

Examples:
  # Scan a region of a retina screenshot
  proofpulse scan shot.png --x 120 --y 80 --width 400 --height 300 --dpr 2 \
    --page-url https://example.com/checkout

  # Scan every screenshot in a directory, Markdown report, keep the crops
  proofpulse scan ./captures --format markdown --out ./crops

  # JSON output for scripting
  proofpulse scan shot.webp --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	cmd.Flags().Float64("x", 0, "Selection left edge (CSS px)")
	cmd.Flags().Float64("y", 0, "Selection top edge (CSS px)")
	cmd.Flags().Float64P("width", "W", 0, "Selection width (CSS px, default: whole screenshot)")
	cmd.Flags().Float64P("height", "H", 0, "Selection height (CSS px, default: whole screenshot)")
	cmd.Flags().Float64("dpr", 1, "Device pixel ratio of the screenshot")
	cmd.Flags().StringP("page-url", "u", "", "Page URL reported to the analyzer (default: the source)")
	cmd.Flags().StringP("format", "f", "", "Report format: text, markdown or json")
	cmd.Flags().StringP("out", "o", "", "Directory to write crops to")
	cmd.Flags().String("crop-format", "png", "Format of written crops: png, jpeg or webp")
	cmd.Flags().Bool("debug", false, "Also write the screenshot with the selection drawn on it")
	cmd.Flags().StringP("analyzer", "a", "", "Analyzer base URL")
	cmd.Flags().IntP("jobs", "j", 4, "Number of concurrent scans")

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := scanOptionsFrom(cmd)
	if err != nil {
		return err
	}
	if opts.analyzer != "" {
		cfg.Relay.AnalyzerURL = opts.analyzer
	}
	if opts.format != "" {
		cfg.Output.Format = opts.format
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)

	sources, err := expandSources(args)
	if err != nil {
		return err
	}

	pp, err := proofpulse.New(cfg.Relay.AnalyzerURL, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := runScans(ctx, pp, sources, opts, logger)
	return writeResults(cmd.OutOrStdout(), cmd.ErrOrStderr(), presenter.Format(cfg.Output.Format), results)
}

func scanOptionsFrom(cmd *cobra.Command) (scanOptions, error) {
	var opts scanOptions
	f := cmd.Flags()
	for name, dst := range map[string]*float64{
		"x":      &opts.area.X,
		"y":      &opts.area.Y,
		"width":  &opts.area.Width,
		"height": &opts.area.Height,
		"dpr":    &opts.area.DevicePixelRatio,
	} {
		v, err := f.GetFloat64(name)
		if err != nil {
			return opts, err
		}
		*dst = v
	}

	var err error
	if opts.pageURL, err = f.GetString("page-url"); err != nil {
		return opts, err
	}
	if opts.format, err = f.GetString("format"); err != nil {
		return opts, err
	}
	if opts.outDir, err = f.GetString("out"); err != nil {
		return opts, err
	}
	if opts.imgFmt, err = f.GetString("crop-format"); err != nil {
		return opts, err
	}
	switch opts.imgFmt = strings.ToLower(opts.imgFmt); opts.imgFmt {
	case "png", "webp":
	case "jpg", "jpeg":
		opts.imgFmt = "jpeg"
	default:
		return opts, fmt.Errorf("unsupported --crop-format %q (use png, jpeg or webp)", opts.imgFmt)
	}
	if opts.debug, err = f.GetBool("debug"); err != nil {
		return opts, err
	}
	if opts.analyzer, err = f.GetString("analyzer"); err != nil {
		return opts, err
	}
	if opts.jobs, err = f.GetInt("jobs"); err != nil {
		return opts, err
	}
	if opts.jobs < 1 {
		opts.jobs = 1
	}
	if opts.debug && opts.outDir == "" {
		return opts, fmt.Errorf("--debug requires --out")
	}
	return opts, nil
}

// expandSources replaces directories by the screenshots inside them.
func expandSources(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		if !utils.DirExists(arg) {
			sources = append(sources, arg)
			continue
		}
		files, err := utils.ListCaptureFiles(arg)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", arg, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no screenshots found in %s", arg)
		}
		sources = append(sources, files...)
	}
	return sources, nil
}

// runScans scans every source with at most opts.jobs in flight. Results keep
// the order of sources.
func runScans(ctx context.Context, pp *proofpulse.Client, sources []string, opts scanOptions, logger *slog.Logger) []scanResult {
	results := make([]scanResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, source := range sources {
		g.Go(func() error {
			results[i] = scanOne(gctx, pp, source, opts, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func scanOne(ctx context.Context, pp *proofpulse.Client, source string, opts scanOptions, logger *slog.Logger) scanResult {
	res := scanResult{source: source}
	pageURL := opts.pageURL
	if pageURL == "" {
		pageURL = source
	}

	proc := processing.NewProcessor()
	data, err := proc.LoadImageSmart(source)
	if err != nil {
		res.err = types.NewScanError(types.ClassCapture, "Could not read the screenshot", err)
		return res
	}

	area := opts.area
	whole := area.Width == 0 && area.Height == 0

	var img image.Image
	if whole || opts.outDir != "" {
		if img, err = proc.DecodeImage(data); err != nil {
			res.err = types.NewScanError(types.ClassCapture, "Could not read the screenshot", err)
			return res
		}
	}
	if whole {
		b := img.Bounds()
		area.X, area.Y = 0, 0
		area.Width = float64(b.Dx()) / area.Scale()
		area.Height = float64(b.Dy()) / area.Scale()
	}

	res.report, res.err = pp.ScanScreenshot(ctx, data, pageURL, area)

	if opts.outDir != "" {
		if err := saveArtifacts(proc, img, source, area, opts); err != nil {
			logger.Warn("could not save crop", "source", source, "error", err)
		}
	}
	return res
}

// cropQuality applies to lossy crop formats.
const cropQuality = 90

// saveArtifacts writes the crop, and the annotated screenshot when asked.
func saveArtifacts(proc *processing.Processor, img image.Image, source string, area types.SelectionRect, opts scanOptions) error {
	if err := utils.EnsureDir(opts.outDir); err != nil {
		return err
	}

	crop, err := proc.CropSelection(img, area)
	if err != nil {
		return err
	}
	if err := proc.SaveImage(crop, utils.CropFilename(source, opts.outDir, "_crop", opts.imgFmt), opts.imgFmt, cropQuality, false); err != nil {
		return err
	}

	if opts.debug {
		overlay := proc.CreateDebugOverlay(img, area)
		if err := proc.SaveImage(overlay, utils.CropFilename(source, opts.outDir, "_debug", "png"), "png", 0, true); err != nil {
			return err
		}
	}
	return nil
}

// writeResults renders each verdict on w and reports failures on errW. It
// returns an error when any scan failed.
func writeResults(w, errW io.Writer, format presenter.Format, results []scanResult) error {
	writer := presenter.NewWriter(format, w)

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(errW, "%s: %v\n", res.source, res.err)
			continue
		}
		if _, err := writer.Write(res.report); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scans failed", failed, len(results))
	}
	return nil
}
