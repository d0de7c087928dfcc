package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/esimov/facecorpus"
	"github.com/esimov/facecorpus/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// cascadeEnv names the environment variable used when no cascade flag is given.
const cascadeEnv = "FACECORPUS_CASCADE"

// cropOptions holds the configuration of the crop command.
type cropOptions struct {
	ImgDir    string
	OutDir    string
	Cascade   string
	Selection string
	Report    string
	Workers   int
	Size      int
	MinSize   int
	MinScore  float64
	Angle     float64
	Timeout   time.Duration
	Progress  bool
}

var cropOpts cropOptions

var cropCmd = &cobra.Command{
	Use:   "crop",
	Short: "Detect and crop the primary face of every image",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrop(cmd.Context(), cropOpts)
	},
}

func init() {
	cropCmd.Flags().StringVar(&cropOpts.ImgDir, "img_dir", "", "Directory containing the <personId>/<imageId>.jpg images")
	cropCmd.Flags().StringVar(&cropOpts.OutDir, "out_dir", "", "Directory to write the face crops to (without a trailing /)")
	cropCmd.Flags().StringVar(&cropOpts.Cascade, "cascade", "", "Path or URL of the pigo facefinder cascade (default $"+cascadeEnv+")")
	cropCmd.Flags().StringVar(&cropOpts.Selection, "select", "first", "Face selection among the detections: first or score")
	cropCmd.Flags().StringVar(&cropOpts.Report, "report", "", "Write the per image outcomes to this YAML file")
	cropCmd.Flags().IntVarP(&cropOpts.Workers, "workers", "w", runtime.NumCPU(), "Number of images processed concurrently")
	cropCmd.Flags().IntVar(&cropOpts.Size, "size", facecorpus.DefaultCropSize, "Side of the square face crops")
	cropCmd.Flags().IntVar(&cropOpts.MinSize, "min-size", 20, "Minimum face size in pixels")
	cropCmd.Flags().Float64Var(&cropOpts.MinScore, "min-score", 5.0, "Minimum cascade detection score")
	cropCmd.Flags().Float64Var(&cropOpts.Angle, "angle", 0.0, "Plane rotated faces angle")
	cropCmd.Flags().DurationVar(&cropOpts.Timeout, "timeout", 30*time.Second, "Face detection timeout per image (0 disables it)")
	cropCmd.Flags().BoolVar(&cropOpts.Progress, "progress", true, "Show a progress bar when attached to a terminal")

	cropCmd.MarkFlagRequired("img_dir")
	cropCmd.MarkFlagRequired("out_dir")
	rootCmd.AddCommand(cropCmd)
}

// validateCropFlags ensures the arguments are valid before any image is touched.
func validateCropFlags(opts *cropOptions) error {
	if opts.ImgDir == "" {
		return errors.New("specify the image directory with --img_dir")
	}
	if opts.OutDir == "" {
		return errors.New("specify the output directory with --out_dir")
	}
	if strings.HasSuffix(opts.OutDir, "/") || strings.HasSuffix(opts.OutDir, string(os.PathSeparator)) {
		return errors.New("specify --out_dir without a trailing /")
	}
	if opts.Cascade == "" {
		opts.Cascade = os.Getenv(cascadeEnv)
	}
	if opts.Cascade == "" {
		return fmt.Errorf("specify the face cascade with --cascade or $%s", cascadeEnv)
	}
	if _, err := facecorpus.ParseSelection(opts.Selection); err != nil {
		return err
	}
	if opts.Size < 1 {
		return fmt.Errorf("invalid crop size: must be >= 1, got %d", opts.Size)
	}
	if opts.MinSize < 1 {
		return fmt.Errorf("invalid minimum face size: must be >= 1, got %d", opts.MinSize)
	}
	if opts.Angle < 0 || opts.Angle > 1 {
		return fmt.Errorf("invalid angle: must be between 0.0 and 1.0, got %f", opts.Angle)
	}
	if opts.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", opts.Timeout)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return nil
}

func runCrop(ctx context.Context, opts cropOptions) error {
	if err := validateCropFlags(&opts); err != nil {
		return err
	}

	paths, err := facecorpus.Discover(opts.ImgDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images detected; try checking --img_dir")
	}

	detector := facecorpus.NewPigoDetector(opts.Cascade)
	detector.MinSize = opts.MinSize
	detector.MinScore = float32(opts.MinScore)
	detector.Angle = opts.Angle
	if err := detector.Load(); err != nil {
		return err
	}

	selection, _ := facecorpus.ParseSelection(opts.Selection)
	cropper := facecorpus.NewCropper(detector)
	cropper.Size = opts.Size
	cropper.Timeout = opts.Timeout
	cropper.Selection = selection

	pipeline := &facecorpus.Pipeline{
		Cropper: cropper,
		Workers: opts.Workers,
	}

	if opts.Progress && utils.IsTerminal(os.Stderr) {
		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("✂️  Cropping faces"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
		pipeline.Progress = func(facecorpus.Outcome) {
			bar.Add(1)
		}
	}

	now := time.Now()
	outcomes, err := pipeline.Process(ctx, paths, opts.OutDir)
	if err != nil {
		return err
	}

	if opts.Report != "" {
		if err := writeReport(opts.Report, outcomes); err != nil {
			return err
		}
	}

	printSummary(facecorpus.Summarize(outcomes), time.Since(now))

	return nil
}

func writeReport(path string, outcomes []facecorpus.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create the report file: %w", err)
	}
	if err := facecorpus.WriteReport(f, outcomes); err != nil {
		f.Close()
		return fmt.Errorf("unable to write the report: %w", err)
	}
	return f.Close()
}

// printSummary displays the relevant information about the cropping process.
func printSummary(s facecorpus.Summary, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\n%s %s\n",
		utils.DecorateText("Cropped faces:", utils.StatusMessage),
		utils.DecorateText(fmt.Sprintf("%d of %d images (%s)", s.Succeeded, s.Total, utils.FormatBytes(s.Bytes)), utils.SuccessMessage),
	)

	for r := facecorpus.ReasonMalformedKey; r <= facecorpus.ReasonCanceled; r++ {
		if n := s.Failed[r]; n > 0 {
			fmt.Fprintf(os.Stderr, "%s %d\n", utils.DecorateText(fmt.Sprintf("Skipped (%s):", r), utils.ErrorMessage), n)
		}
	}
	fmt.Fprintf(os.Stderr, "Execution time: %s\n", utils.DecorateText(utils.FormatTime(elapsed), utils.SuccessMessage))
}
