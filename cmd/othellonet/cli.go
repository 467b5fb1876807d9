package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type commandFunc func(ctx context.Context) error

type command struct {
	usage string
	flags *flag.FlagSet
	run   commandFunc
}

// Cli dispatches "<command> [flags]" to registered handlers. Every
// command owns its flag set.
type Cli struct {
	name     string
	output   io.Writer
	commands map[string]*command
}

func NewCli(name string, output io.Writer) *Cli {
	return &Cli{
		name:     name,
		output:   output,
		commands: make(map[string]*command),
	}
}

// AddCommand registers name. setup declares the command's flags and
// returns the handler that runs after they are parsed.
func (c *Cli) AddCommand(name, usage string, setup func(fs *flag.FlagSet) commandFunc) {
	var fs = flag.NewFlagSet(c.name+" "+name, flag.ContinueOnError)
	fs.SetOutput(c.output)
	c.commands[name] = &command{
		usage: usage,
		flags: fs,
		run:   setup(fs),
	}
}

func (c *Cli) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.printUsage()
		return errors.New("command not specified")
	}
	var cmd, found = c.commands[args[0]]
	if !found {
		c.printUsage()
		return errors.Errorf("command not found %v", args[0])
	}
	if err := cmd.flags.Parse(args[1:]); err != nil {
		return err
	}
	return cmd.run(ctx)
}

func (c *Cli) printUsage() {
	var names = make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(c.output, "usage: %v [-log-level level] <command> [flags]\n", c.name)
	for _, name := range names {
		fmt.Fprintf(c.output, "  %-8v %v\n", name, c.commands[name].usage)
	}
}

// bitboardFlag accepts decimal, 0x-prefixed hex or 0b-prefixed masks.
type bitboardFlag uint64

func (b *bitboardFlag) String() string {
	return fmt.Sprintf("%#016x", uint64(*b))
}

func (b *bitboardFlag) Set(s string) error {
	var v, err = strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return err
	}
	*b = bitboardFlag(v)
	return nil
}

// listFlag collects comma separated values.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(s string) error {
	*l = nil
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}
