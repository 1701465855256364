package liftutils

import (
	_ "embed"
	"flag"
	"fmt"
	"os"
)

//go:generate sh -c "printf %s $(git rev-parse HEAD) > githash.txt"
//go:embed githash.txt
var gitHash string

func GetGitHash() string {
	return gitHash
}

// CmdArgs holds everything the command line can override.
type CmdArgs struct {
	ConfigPath  string
	EnvPath     string
	NumCars     int
	MaxFloor    int
	Interactive bool
}

func ProcessCmdArgs() CmdArgs {
	help := flag.Bool("help", false, "Show Help Window")
	version := flag.Bool("version", false, "Show Version")
	configPath := flag.String("config", "", "Path to a YAML config file. Defaults to built-in settings")
	envPath := flag.String("env", ".env", "Path to a .env override file")
	numCars := flag.Int("cars", 0, "Number of cars in the fleet. Overrides the config file")
	maxFloor := flag.Int("floors", 0, "Top floor of the shaft. Overrides the config file")
	interactive := flag.Bool("interactive", false, "Enable keyboard control of the simulation")

	flag.Parse()

	if *numCars < 0 || *maxFloor < 0 {
		fmt.Println("cars and floors must be positive")
		os.Exit(1)
	}

	if *version {
		fmt.Println("Version:", GetGitHash())
		os.Exit(0)
	}

	if *help {
		fmt.Println("Usage: ./liftsim [OPTIONS]")
		fmt.Println("Building elevator dispatch simulation")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Interactive keys:")
		fmt.Println("	u/d	hall call Up/Down from a random floor")
		fmt.Println("	c	cab call in a random car")
		fmt.Println("	e	emergency stop all cars")
		fmt.Println("	r	resume operation")
		fmt.Println("	q	quit")
		os.Exit(0)
	}

	return CmdArgs{
		ConfigPath:  *configPath,
		EnvPath:     *envPath,
		NumCars:     *numCars,
		MaxFloor:    *maxFloor,
		Interactive: *interactive,
	}
}
