package cmd

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/graphcore/popliner/planner"
	"github.com/graphcore/popliner/profile"
	"github.com/graphcore/popliner/spreadsheet"
)

var (
	// CLI flags for output selection
	logLevel           string // Log verbosity level
	format             string // Output format (tsv, csv or json)
	operationBreakdown bool   // Print a memory breakdown per operation
	layerBreakdown     bool   // Print a memory breakdown per layer
	memoryTotals       bool   // Print whole-model memory totals
	memoryAffinity     bool   // Print the shared-variable size for each layer pair
	interlayerComm     bool   // Print the bridged-variable size for each layer pair

	// CLI flags for grouping
	layerNameRegex string // Regex extracting the layer identifier from context labels
	saveToFile     string // Save the grouped operations to this path
	loadFromFile   bool   // Treat the positional argument as a saved operations file

	// CLI flags for solving
	doSolve             bool   // Solve for split points
	numIPUs             int    // Maximum number of devices to split across
	memPerUnit          int64  // Memory budget per resource unit in bytes
	targetName          string // Device preset supplying the budget
	targetConfigPath    string // YAML file with device presets
	layerOperationsOnly bool   // Pack only operations assigned to a layer
)

// validFormats maps the accepted --format values to their delimiter. JSON
// output only applies to --solve; the breakdowns fall back to tabs.
var validFormats = map[string]rune{
	"tsv":  '\t',
	"csv":  ',',
	"json": '\t',
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "popliner",
	Short: "Recommends pipeline split points for models too large for one device",
	Long: `Process the memory profile of a large model compiled for a single device
(out of memory) and provide guidance on how to split the model across
multiple devices using pipelining.`,
}

// runCmd analyses one profile using parameters from CLI flags. Its Run
// closure is attached in init to avoid an initialization cycle (the closure
// calls solve, which reads runCmd's flags).
var runCmd = &cobra.Command{
	Use:   "run <profile>",
	Short: "Analyse a profile and report memory breakdowns and split points",
	Args:  cobra.ExactArgs(1),
}

func runCmdRun(cmd *cobra.Command, args []string) {
	// Set up logging
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	delimiter, ok := validFormats[format]
	if !ok {
		logrus.Fatalf("Invalid format %q (tsv, csv or json)", format)
	}

	list := loadOperations(args[0])
	if saveToFile != "" {
		if err := planner.SaveOperations(saveToFile, list); err != nil {
			logrus.Fatalf("Saving operations: %v", err)
		}
		logrus.Infof("Operations saved to %s", saveToFile)
	}

	if operationBreakdown {
		if err := spreadsheet.WriteOperations(os.Stdout, list, delimiter, 0); err != nil {
			logrus.Fatalf("Writing operation breakdown: %v", err)
		}
	}
	if layerBreakdown {
		if err := spreadsheet.WriteLayers(os.Stdout, list, delimiter); err != nil {
			logrus.Fatalf("Writing layer breakdown: %v", err)
		}
	}
	if memoryTotals {
		printMemoryTotals(list, delimiter)
	}
	if memoryAffinity {
		layers, matrix := planner.MemoryAffinityMatrix(list)
		if err := spreadsheet.WriteMatrix(os.Stdout, layers, matrix, delimiter); err != nil {
			logrus.Fatalf("Writing memory affinity: %v", err)
		}
	}
	if interlayerComm {
		layers, matrix := planner.InterlayerExchangeMatrix(list)
		if err := spreadsheet.WriteMatrix(os.Stdout, layers, matrix, delimiter); err != nil {
			logrus.Fatalf("Writing interlayer communication: %v", err)
		}
	}

	if doSolve {
		solve(list, delimiter)
	}
}

// loadOperations builds the operation list from a profile, or reloads a
// previously saved one when --load-from-file is set.
func loadOperations(path string) *planner.OperationList {
	if loadFromFile {
		list, err := planner.LoadOperations(path)
		if err != nil {
			logrus.Fatalf("Loading operations: %v", err)
		}
		return list
	}
	logrus.Info("Loading profile...")
	rep, err := profile.Load(path)
	if err != nil {
		logrus.Fatalf("Loading profile: %v", err)
	}
	analysis, err := planner.NewAnalysis(rep)
	if err != nil {
		logrus.Fatalf("Indexing profile: %v", err)
	}
	extract, err := planner.RegexLayerExtractor(layerNameRegex)
	if err != nil {
		logrus.Fatalf("Invalid --layer-name-regex: %v", err)
	}
	return planner.BuildOperationList(analysis, rep.Root, extract)
}

// resolveBudget returns the per-unit memory budget, taking it from the
// --target preset when one is named and from --mem-per-unit otherwise.
func resolveBudget(flagChanged func(string) bool, numUnits int) int64 {
	if targetName == "" {
		return memPerUnit
	}
	cfg := DefaultTargetConfig()
	if targetConfigPath != "" {
		loaded, err := LoadTargetConfig(targetConfigPath)
		if err != nil {
			logrus.Fatalf("Loading target config: %v", err)
		}
		cfg = loaded
	}
	target, ok := cfg.Lookup(targetName)
	if !ok {
		logrus.Fatalf("Unknown target %q in target config", targetName)
	}
	if flagChanged("mem-per-unit") {
		logrus.Warnf("--mem-per-unit ignored because --target %s supplies the budget", targetName)
	}
	if numUnits != target.NumUnits {
		logrus.Warnf("Profile was recorded with %d units per device but target %s has %d",
			numUnits, targetName, target.NumUnits)
	}
	return target.BytesPerUnit
}

func solve(list *planner.OperationList, delimiter rune) {
	budget := resolveBudget(runCmd.Flags().Changed, list.Analysis().NumUnits())
	solver := planner.NewGreedySolver(list)
	solver.LayerOperationsOnly = layerOperationsOnly
	stages, err := solver.Solve(numIPUs, budget)
	var insufficient *planner.InsufficientDevicesError
	if errors.As(err, &insufficient) {
		color.Red("Unable to fit model in %d device(s) with %d bytes per unit", numIPUs, budget)
		return
	}
	if err != nil {
		logrus.Fatalf("Solving: %v", err)
	}

	if format == "json" {
		out, err := spreadsheet.SplitsJSON(stages)
		if err != nil {
			logrus.Fatalf("Rendering splits: %v", err)
		}
		os.Stdout.Write(out)
		os.Stdout.Write([]byte("\n"))
		return
	}
	if err := spreadsheet.WriteSplits(os.Stdout, stages, delimiter); err != nil {
		logrus.Fatalf("Writing splits: %v", err)
	}
	color.Green("Model fits on %d of %d device(s)", len(stages), numIPUs)
}

// unitsToShow caps the memory-totals table width.
const unitsToShow = 10

// printMemoryTotals prints the whole-model peak, plus a per-unit table for
// the first few units. The whole model is aggregated through a single stage
// so re-used sub-graphs are counted once.
func printMemoryTotals(list *planner.OperationList, delimiter rune) {
	stage := planner.NewStage(list.Analysis())
	for i := 0; i < list.Len(); i++ {
		stage.Add(list.At(i))
	}
	if err := spreadsheet.WriteTotals(os.Stdout, stage, delimiter, unitsToShow); err != nil {
		logrus.Fatalf("Writing memory totals: %v", err)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Run = runCmdRun

	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&format, "format", "tsv", "Output format: tsv, csv or json (json applies to --solve only)")

	// Output selection
	runCmd.Flags().BoolVar(&operationBreakdown, "operation-breakdown", false, "Output a memory breakdown per operation")
	runCmd.Flags().BoolVar(&layerBreakdown, "layer-breakdown", false, "Output a memory breakdown per layer")
	runCmd.Flags().BoolVar(&memoryTotals, "memory-totals", false, "Print total memory for the whole model")
	runCmd.Flags().BoolVar(&memoryAffinity, "memory-affinity", false, "For each layer pair, output the size of shared variables")
	runCmd.Flags().BoolVar(&interlayerComm, "interlayer-communication", false, "For each layer pair, output the size of variables created in the first layer and consumed in the second one")

	// Grouping
	runCmd.Flags().StringVar(&layerNameRegex, "layer-name-regex", planner.DefaultLayerNameRegex, "Regular expression used to extract the layer identifier (in capture group) from debug-context labels")
	runCmd.Flags().StringVar(&saveToFile, "save-to-file", "", "Pre-process and save operations to this file path")
	runCmd.Flags().BoolVar(&loadFromFile, "load-from-file", false, "Load pre-processed operations from the given file path instead of a profile")

	// Solving
	runCmd.Flags().BoolVar(&doSolve, "solve", false, "Solve for split points")
	runCmd.Flags().IntVar(&numIPUs, "num-ipus", 16, "When solving, the maximum number of devices in the system")
	runCmd.Flags().Int64Var(&memPerUnit, "mem-per-unit", 638976, "When solving, the memory per resource unit in bytes")
	runCmd.Flags().StringVar(&targetName, "target", "", "Device preset supplying the per-unit budget (see --target-config)")
	runCmd.Flags().StringVar(&targetConfigPath, "target-config", "", "YAML file with device presets (default: built-in presets)")
	runCmd.Flags().BoolVar(&layerOperationsOnly, "layer-operations-only", false, "Pack only operations assigned to a layer")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
