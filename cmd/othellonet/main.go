package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var fs = flag.NewFlagSet("othellonet", flag.ExitOnError)
	var level = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Parse(os.Args[1:])

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	if lvl, err := zerolog.ParseLevel(*level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", *level).Msg("unknown log level")
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cli = NewCli("othellonet", os.Stderr)
	cli.AddCommand("import", "import CSV rows into a dataset store", importCommand)
	cli.AddCommand("train", "train an evaluator", trainCommand)
	cli.AddCommand("average", "average checkpoints into one", averageCommand)
	cli.AddCommand("export", "export a checkpoint as an inference artifact", exportCommand)
	cli.AddCommand("eval", "evaluate a position with an artifact", evalCommand)
	cli.AddCommand("quality", "measure an artifact against a dataset", qualityCommand)
	cli.AddCommand("query", "query an evaluation server", queryCommand)
	cli.AddCommand("serve", "serve an artifact over the evaluation protocol", serveCommand)

	if err := cli.Execute(ctx, fs.Args()); err != nil {
		log.Error().Err(err).Msg("failed")
		stop()
		os.Exit(1)
	}
}
