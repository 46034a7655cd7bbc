/*
 * This file is part of the Go Cesium Point Cloud Tiler distribution (https://github.com/mfbonfigli/gocesiumtiler).
 * Copyright (c) 2019 Massimo Federico Bonfigli - m.federico.bonfigli@gmail.com
 *
 * This program is free software; you can redistribute it and/or modify it
 * under the terms of the GNU Lesser General Public License Version 3 as
 * published by the Free Software Foundation;
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
 * Lesser General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 *
 * This software also uses third party components. You can find information
 * on their credits and licensing in the file LICENSE-3RD-PARTIES.md that
 * you should have received togheter with the source code.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"

	"github.com/ecopia-map/octiler/internal/cliutil"
	"github.com/ecopia-map/octiler/internal/config"
	"github.com/ecopia-map/octiler/internal/convert"
	"github.com/ecopia-map/octiler/internal/persistence"
	"github.com/ecopia-map/octiler/internal/points"
	"github.com/ecopia-map/octiler/internal/progress"
	"github.com/ecopia-map/octiler/internal/sources"
	"github.com/ecopia-map/octiler/internal/transform"
)

const version = "0.1.0"

// Exit codes, per the on-disk interface this CLI implements: 0 success,
// 1 usage error, 2 I/O error, 3 decode error, 4 cancelled.
const (
	exitOK       = 0
	exitUsage    = 1
	exitIO       = 2
	exitDecode   = 3
	exitCanceled = 4
)

const logo = `
                _   _ _
  ___  ___ _ __| |_(_) | ___ _ __
 / _ \/ _ \ '__| __| | |/ _ \ '__|
|  __/  __/ |  | |_| | |  __/ |
 \___|\___|_|   \__|_|_|\___|_|
  octree point cloud tiler, built from gocesiumtiler's lineage
`

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	cmd, rest := os.Args[1], os.Args[2:]

	var code int
	switch cmd {
	case "index":
		code = runIndex(rest)
	case "merge":
		code = runMerge(rest)
	case "verify":
		code = runVerify(rest)
	case "-h", "-help", "--help", "help":
		usage()
		code = exitOK
	case "-v", "-version", "--version", "version":
		fmt.Println("octiler v" + version)
		code = exitOK
	default:
		fmt.Fprintf(os.Stderr, "unrecognized command %q. Command must be one of [index|merge|verify]\n", cmd)
		code = exitUsage
	}
	os.Exit(code)
}

func usage() {
	fmt.Println(logo)
	fmt.Println("Usage: octiler <index|merge|verify> [flags]")
	fmt.Println("Run 'octiler <command> -h' for flags specific to a command.")
}

// commonFlags are the settings every subcommand shares: projection,
// sampling and concurrency knobs, plus where to read a TOML config from.
type commonFlags struct {
	configPath     *string
	output         *string
	srid           *int
	eightBit       *bool
	zOffset        *float64
	geoidCorrect   *bool
	minPoints      *int
	maxPoints      *int
	maxDepth       *int
	spacing        *float64
	gridResolution *int
	sampler        *string
	algorithm      *string
	refineMode     *string
	errorScale     *float64
	maxConcurrency *int64
	processThresh  *int64
	maxMemoryMiB   *int64
	outputFormat   *string
	dracoEnable    *bool
	dracoEncoder   *string
	logFile        *string
	silent         *bool
	targetSRS      *string
}

func defineCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath:     fs.String("config", "", "Path to a TOML config file; CLI flags override its fields."),
		output:         fs.String("output", "", "Output directory for the tileset."),
		srid:           fs.Int("srid", 4326, "EPSG SRID of the input points."),
		eightBit:       fs.Bool("8bit", false, "Input color channels are already 8-bit (default assumes 16-bit)."),
		zOffset:        fs.Float64("zoffset", 0, "Vertical offset applied to every point, in meters."),
		geoidCorrect:   fs.Bool("geoid", false, "Apply geoid-to-ellipsoid Z correction."),
		minPoints:      fs.Int("points-min-num", 10000, "Per-node point cap the RANDOM sampler keeps (sampling_params for RANDOM)."),
		maxPoints:      fs.Int("points-max-num", 20000, "Points per node above which a node splits into children."),
		maxDepth:       fs.Int("max-depth", 12, "Maximum octree depth; a node at this depth keeps up to points-max-num and discards the rest."),
		spacing:        fs.Float64("spacing", 1.0, "Minimum point separation at the root, reported in the manifest."),
		gridResolution: fs.Int("grid-resolution", 128, "Per-axis cell count the grid sampler overlays on a node."),
		sampler:        fs.String("sampler", "GRID", "Sampling strategy: GRID or RANDOM."),
		algorithm:      fs.String("algorithm", "V1", "Tree-build algorithm: V1 (sequential) or V2 (parallel fan-out)."),
		refineMode:     fs.String("refine-mode", "ADD", "Refine mode: ADD or REPLACE."),
		errorScale:     fs.Float64("geometric-error-scale", 1.0, "Multiplier applied to every node's computed geometric error."),
		maxConcurrency: fs.Int64("max-concurrency", 0, "Bound on concurrent node-build tasks; 0 picks GOMAXPROCS."),
		processThresh:  fs.Int64("process-threshold", 1_000_000, "Queued point count that triggers draining the ingest cache and building a batch."),
		maxMemoryMiB:   fs.Int64("max-memory-mib", 0, "Bound on the ingest cache's estimated footprint in MiB; 0 means unbounded."),
		outputFormat:   fs.String("format", "BIN", "Node payload format: BIN, LAS, or LAZ."),
		dracoEnable:    fs.Bool("draco", false, "Additionally compress each leaf node's points with draco_encoder."),
		dracoEncoder:   fs.String("draco-encoder", "draco_encoder", "Path to the draco_encoder binary."),
		logFile:        fs.String("log-file", "", "Rotate run logs to this file instead of stderr."),
		silent:         fs.Bool("silent", false, "Suppress non-error log output."),
		targetSRS:      fs.String("target-srs", "", "PROJ.4 definition string for the tileset's output region; empty means WGS84 longitude/latitude (no reprojection when -srid is 4326)."),
	}
}

// resolveConfig merges a commonFlags set with an optional TOML file,
// flags winning per-field, the same precedence tools/flags.go documents
// for the teacher's own CLI.
func resolveConfig(fs *flag.FlagSet, c commonFlags) (config.File, error) {
	base := config.File{}
	if *c.configPath != "" {
		loaded, err := config.Load(*c.configPath)
		if err != nil {
			return config.File{}, err
		}
		base = loaded
	}

	overrides := config.Overrides{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			overrides.Output = c.output
		case "srid":
			overrides.Srid = c.srid
		case "points-min-num":
			v := int32(*c.minPoints)
			overrides.RandomSamplerCap = &v
		case "points-max-num":
			v := int32(*c.maxPoints)
			overrides.MaxPointsPerNode = &v
		case "max-depth":
			overrides.MaxDepth = c.maxDepth
		case "spacing":
			overrides.Spacing = c.spacing
		case "process-threshold":
			overrides.ProcessThreshold = c.processThresh
		case "max-memory-mib":
			overrides.MaxMemoryUsageMiB = c.maxMemoryMiB
		case "grid-resolution":
			overrides.GridResolution = c.gridResolution
		case "sampler":
			overrides.Sampler = c.sampler
		case "algorithm":
			overrides.Algorithm = c.algorithm
		case "refine-mode":
			overrides.RefineMode = c.refineMode
		case "geometric-error-scale":
			overrides.GeometricErrorScale = c.errorScale
		case "max-concurrency":
			overrides.MaxConcurrency = c.maxConcurrency
		case "draco":
			overrides.Draco = c.dracoEnable
		case "8bit":
			base.EightBitColors = *c.eightBit
		case "zoffset":
			base.ZOffset = *c.zOffset
		case "geoid":
			base.EnableGeoidZCorrection = *c.geoidCorrect
		case "format":
			base.OutputFormat = *c.outputFormat
		case "draco-encoder":
			base.DracoEncoderPath = *c.dracoEncoder
		}
	})
	merged := base.Merge(overrides)
	if merged.Algorithm == "" {
		merged.Algorithm = *c.algorithm
	}
	if merged.RefineMode == "" {
		merged.RefineMode = *c.refineMode
	}
	if merged.Sampler == "" {
		merged.Sampler = *c.sampler
	}
	if merged.OutputFormat == "" {
		merged.OutputFormat = *c.outputFormat
	}
	if merged.Srid == 0 {
		merged.Srid = *c.srid
	}
	if merged.RandomSamplerCap == 0 {
		merged.RandomSamplerCap = int32(*c.minPoints)
	}
	merged.Draco = merged.Draco || *c.dracoEnable
	if merged.DracoEncoderPath == "" {
		merged.DracoEncoderPath = *c.dracoEncoder
	}
	return merged, nil
}

func defaultSchema(f config.File) points.Schema {
	return points.Schema{points.Position, points.ColorPacked, points.Intensity, points.Classification}
}

func nodeStoreFor(format, outputDir string) (persistence.NodeStore, error) {
	switch strings.ToUpper(format) {
	case "", "BIN":
		return persistence.BinNodeStore{Dir: outputDir}, nil
	case "LAZ":
		return persistence.LazNodeStore{Dir: outputDir}, nil
	case "LAS":
		return persistence.LasNodeStore{Dir: outputDir}, nil
	default:
		return nil, fmt.Errorf("unrecognized output format %q", format)
	}
}

func dracoCompressorFor(cfg config.File) *persistence.DracoCompressor {
	if !cfg.Draco {
		return nil
	}
	return &persistence.DracoCompressor{EncoderPath: cfg.DracoEncoderPath}
}

// transformFor builds the Transform a run's points are reprojected through
// at persistence time (§9: never mid-partition). srid==4326 with no
// explicit target is treated as already matching the run's output CRS, so
// no PROJ.4 round trip is paid for the common case of already-WGS84 input.
func transformFor(srid int, targetSRS string) (transform.Transform, func(), error) {
	if srid == 4326 && targetSRS == "" {
		return transform.Identity{}, func() {}, nil
	}
	srcDef := fmt.Sprintf("+init=epsg:%d", srid)
	dstDef := targetSRS
	if dstDef == "" {
		dstDef = "+proj=longlat +datum=WGS84 +no_defs"
	}
	t, err := transform.NewProj4Transform(srcDef, dstDef)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

// projectionLabelFor names r.json's "projection" field: the explicit
// target definition if one was given, otherwise the input SRID, or the
// empty string for the common already-WGS84 case (§4.7: "possibly
// empty").
func projectionLabelFor(srid int, targetSRS string) string {
	if targetSRS != "" {
		return targetSRS
	}
	if srid == 4326 {
		return ""
	}
	return fmt.Sprintf("EPSG:%d", srid)
}

// context with SIGINT/SIGTERM cancellation, matching §5's single
// cancellation token contract.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// drivePointsPlacedBar polls rep's "points_placed" counter and mirrors it
// onto a progressbar/v3 bar until stop is called. The bar starts
// indeterminate (-1) because the counter's total isn't known until
// Tiler.Build has computed the point buffer's length, then switches to a
// determinate bar on the first tick that reports one.
func drivePointsPlacedBar(rep *progress.Reporter, silent bool) (stop func()) {
	if silent {
		return func() {}
	}
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("tiling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(150 * time.Millisecond)
		defer ticker.Stop()
		sawTotal := false
		for {
			select {
			case <-ticker.C:
				counter := rep.Counter("points_placed")
				if !sawTotal {
					if total := counter.Total(); total > 0 {
						bar.ChangeMax64(total)
						sawTotal = true
					}
				}
				bar.Set64(counter.Value())
			case <-done:
				bar.Finish()
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	}()
	return func() { close(done) }
}

func runIndex(args []string) int {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	input := fs.String("input", "", "Input LAS/XYZ file or a folder of them.")
	folder := fs.Bool("folder", false, "Treat -input as a folder to scan for source files.")
	recursive := fs.Bool("recursive", false, "Scan -input recursively when -folder is set.")
	storeOpt := fs.String("store-option", "ABORT_IF_EXISTS", "ABORT_IF_EXISTS, OVERWRITE, or INCREMENTAL.")
	common := defineCommonFlags(fs)
	fs.Parse(args)

	if *common.logFile != "" {
		cliutil.ConfigureFileLogging(*common.logFile, 100, 30)
	}
	if *input == "" || *common.output == "" {
		fmt.Fprintln(os.Stderr, "index: -input and -output are required")
		return exitUsage
	}

	printLogo(*common.silent)

	cfgFile, err := resolveConfig(fs, common)
	if err != nil {
		log.Println("error:", err)
		return exitUsage
	}

	var files []string
	if *folder {
		files, err = cliutil.DiscoverInputFiles(*input, ".las", *recursive)
		if err == nil {
			xyz, xerr := cliutil.DiscoverInputFiles(*input, ".xyz", *recursive)
			if xerr == nil {
				files = append(files, xyz...)
			}
		}
	} else {
		files = []string{*input}
	}
	if err != nil {
		log.Println("error discovering input files:", err)
		return exitIO
	}
	if len(files) == 0 {
		log.Println("error: no input files found under", *input)
		return exitUsage
	}

	schema := defaultSchema(cfgFile)
	srcs := make([]sources.PointSource, 0, len(files))
	for _, path := range files {
		if strings.EqualFold(filepath.Ext(path), ".xyz") {
			srcs = append(srcs, sources.XyzSource{Path: path})
		} else {
			srcs = append(srcs, sources.LasSource{Path: path, EightBitColors: cfgFile.EightBitColors})
		}
	}

	store, err := nodeStoreFor(cfgFile.OutputFormat, *common.output)
	if err != nil {
		log.Println("error:", err)
		return exitUsage
	}
	tr, closeTransform, err := transformFor(cfgFile.Srid, *common.targetSRS)
	if err != nil {
		log.Println("error setting up projection, continuing with identity transform:", err)
		tr, closeTransform = transform.Identity{}, func() {}
	}
	defer closeTransform()

	rep := progress.New()
	driver := convert.NewDriver(schema, cfgFile.TilerConfig(), store, tr, rep)
	driver.StoreOption = convert.StoreOption(strings.ToUpper(*storeOpt))
	driver.Draco = dracoCompressorFor(cfgFile)
	driver.ProjectionLabel = projectionLabelFor(cfgFile.Srid, *common.targetSRS)

	ctx, cancel := signalContext()
	defer cancel()

	stopBar := drivePointsPlacedBar(rep, *common.silent)
	started := time.Now()
	root, err := driver.Index(ctx, srcs, *common.output)
	stopBar()
	if err != nil {
		if ctx.Err() != nil {
			log.Println("canceled:", err)
			return exitCanceled
		}
		log.Println("error:", err)
		return exitDecode
	}

	if root == nil {
		log.Printf("indexed 0 points into %s in %s (empty input)\n", *common.output, time.Since(started).Round(time.Millisecond))
		return exitOK
	}
	log.Printf("indexed %s points into %s in %s\n", humanize.Comma(root.TotalPoints), *common.output, time.Since(started).Round(time.Millisecond))
	return exitOK
}

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	var inputs stringList
	fs.Var(&inputs, "input", "An output directory from a prior index run; repeat for each one to merge.")
	common := defineCommonFlags(fs)
	fs.Parse(args)

	if *common.logFile != "" {
		cliutil.ConfigureFileLogging(*common.logFile, 100, 30)
	}
	if len(inputs) == 0 || *common.output == "" {
		fmt.Fprintln(os.Stderr, "merge: at least one -input and -output are required")
		return exitUsage
	}
	printLogo(*common.silent)

	cfgFile, err := resolveConfig(fs, common)
	if err != nil {
		log.Println("error:", err)
		return exitUsage
	}

	schema := defaultSchema(cfgFile)
	store, err := nodeStoreFor(cfgFile.OutputFormat, *common.output)
	if err != nil {
		log.Println("error:", err)
		return exitUsage
	}
	tr, closeTransform, err := transformFor(cfgFile.Srid, *common.targetSRS)
	if err != nil {
		log.Println("error setting up projection, continuing with identity transform:", err)
		tr, closeTransform = transform.Identity{}, func() {}
	}
	defer closeTransform()

	rep := progress.New()
	driver := convert.NewDriver(schema, cfgFile.TilerConfig(), store, tr, rep)
	driver.StoreOption = convert.Overwrite
	driver.Draco = dracoCompressorFor(cfgFile)
	driver.ProjectionLabel = projectionLabelFor(cfgFile.Srid, *common.targetSRS)

	ctx, cancel := signalContext()
	defer cancel()

	stopBar := drivePointsPlacedBar(rep, *common.silent)
	root, err := driver.Merge(ctx, inputs, *common.output)
	stopBar()
	if err != nil {
		if ctx.Err() != nil {
			log.Println("canceled:", err)
			return exitCanceled
		}
		log.Println("error:", err)
		return exitIO
	}
	if root == nil {
		log.Printf("merged %d inputs into %s (empty result)\n", len(inputs), *common.output)
		return exitOK
	}
	log.Printf("merged %d inputs into %s points at %s\n", len(inputs), humanize.Comma(root.TotalPoints), *common.output)
	return exitOK
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	input := fs.String("input", "", "Output directory from a prior index/merge run.")
	logFile := fs.String("log-file", "", "Rotate run logs to this file instead of stderr.")
	fs.Parse(args)

	if *logFile != "" {
		cliutil.ConfigureFileLogging(*logFile, 100, 30)
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "verify: -input is required")
		return exitUsage
	}

	driver := &convert.Driver{}
	if err := driver.Verify(*input); err != nil {
		log.Println("verify failed:", err)
		return exitDecode
	}
	log.Println("verify: OK")
	return exitOK
}

func printLogo(silent bool) {
	if silent {
		glog.Infoln("octiler v" + version)
		return
	}
	fmt.Println(strings.TrimRight(logo, "\n"))
	fmt.Println("octiler v" + version)
}

// stringList collects repeated -input flags for merge, since flag has no
// built-in repeated-string type.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
