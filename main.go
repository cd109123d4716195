package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/solarlog-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "solarlog-integration",
		Usage:  "polls a Solar-Log device and publishes its readings",
		Action: cmd.SolarlogCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.StringFlag{
				Name:    "poll-schedule",
				EnvVars: []string{"POLL_SCHEDULE"},
				Value:   "@every 30s",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "print a single snapshot as JSON and exit",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
