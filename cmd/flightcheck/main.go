package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "flightcheck",
		Usage: "run a preflight calibration and test flight against a MAVLink autopilot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"FLIGHTCHECK_CONFIG"},
			},
		},
		DefaultCommand: "run",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "fly the test mission",
				Action: doRun,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "autopilot address, e.g. udp://:14540 or serial:///dev/ttyACM0:57600"},
					&cli.StringFlag{Name: "variant", Usage: "mission variant: full or basic"},
					&cli.StringFlag{Name: "db", Usage: "SQLite flight recorder path"},
				},
			},
			{
				Name:   "runs",
				Usage:  "list recorded missions",
				Action: doRuns,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "db", Usage: "SQLite flight recorder path"},
					&cli.BoolFlag{Name: "positions", Usage: "also print recorded position samples"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
