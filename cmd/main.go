package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/juju/loggo"

	"github.com/edp1096/toy-powerflow/pkg/netlist"
	"github.com/edp1096/toy-powerflow/pkg/powerflow"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

var (
	configFile = flag.String("config", "", "YAML options file")
	parallel   = flag.Bool("parallel", false, "solve islands in parallel")
	report     = flag.Bool("report", false, "print the convergence reports")
	verbose    = flag.Int("v", 0, "verbosity (0-2)")
)

func loadOptions() (powerflow.Options, error) {
	if *configFile == "" {
		return powerflow.DefaultOptions(), nil
	}
	f, err := os.Open(*configFile)
	if err != nil {
		return powerflow.Options{}, err
	}
	defer f.Close()
	return powerflow.LoadOptions(f)
}

func printResults(res *powerflow.Results) {
	status := "converged"
	if !res.Converged {
		status = "did not converge"
	}
	fmt.Printf("\nPower flow %s (run %s)\n", status, res.RunID)

	fmt.Println("\nBuses:")
	if err := res.WriteBuses(os.Stdout); err != nil {
		log.Fatalf("Error writing buses: %v", err)
	}

	fmt.Println("\nBranches:")
	if err := res.WriteBranches(os.Stdout); err != nil {
		log.Fatalf("Error writing branches: %v", err)
	}

	losses := res.TotalLosses()
	fmt.Printf("\nTotal losses: %s, %s\n",
		util.FormatValueFactor(real(losses)*1e6, "W"), util.FormatValueFactor(imag(losses)*1e6, "VAr"))

	if *report {
		for i, r := range res.Reports {
			fmt.Printf("\nConvergence report %d:\n", i)
			if err := r.WriteTable(os.Stdout); err != nil {
				log.Fatalf("Error writing report: %v", err)
			}
		}
	}

	if len(res.Diagnostics) > 0 {
		fmt.Println("\nDiagnostics:")
		for _, d := range res.Diagnostics {
			fmt.Println(" ", d)
		}
	}
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: powerflow [-config opts.yaml] [-parallel] [-report] [-v n] <case_file>")
	}

	level := "WARNING"
	switch {
	case *verbose > 1:
		level = "DEBUG"
	case *verbose > 0:
		level = "INFO"
	}
	if err := loggo.ConfigureLoggers("<root>=" + level); err != nil {
		log.Fatalf("Error configuring logging: %v", err)
	}
	logger := loggo.GetLogger("powerflow")

	// 1. Options
	opts, err := loadOptions()
	if err != nil {
		log.Fatalf("Error loading options: %v", err)
	}

	// 2. Parse case file
	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Error reading case file: %v", err)
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("Error parsing case file: %v", err)
	}
	if err := data.ApplyOptions(&opts); err != nil {
		log.Fatalf("Error in .pf options: %v", err)
	}
	if *parallel {
		opts.Parallel = true
	}
	if *verbose > opts.Verbose {
		opts.Verbose = *verbose
	}

	// 3. Build network
	net, err := data.Build()
	if err != nil {
		log.Fatalf("Error building network: %v", err)
	}

	// 4. Solve
	driver := powerflow.NewDriver(opts, logger, nil)
	if err := driver.Setup(net); err != nil {
		log.Fatalf("Power flow setup failed: %v", err)
	}
	if err := driver.Execute(context.Background()); err != nil {
		log.Fatalf("Power flow failed: %v", err)
	}

	// 5. Print result
	printResults(driver.GetResults())
}
