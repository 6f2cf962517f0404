package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"propactive/internal/environment"
	"propactive/internal/file"
	"propactive/internal/inspect"
	"propactive/internal/pipeline"
	"propactive/internal/prompt"
	"propactive/internal/settings"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "generate",
		short: "Generate a properties file for each environment",
		usage: "propactive generate [-environments test,prod] [-implementationClass Name] [-destination dir] [-filenameOverride name] [-dir root] [-patterns ./...] [-dry-run] [-v]",
		long: `Generate one <environment>-application.properties file per selected
environment from the declaration struct in the Go module at -dir.

Flags override PROPACTIVE_* environment variables, which override
.propactive/settings.yaml (or settings.toml).

  -environments       Comma separated environments to generate.
                      Default: "*" (every declared environment)
  -implementationClass
                      Declaration struct, "Name" or "import/path.Name".
                      Default: "ApplicationProperties"
  -destination        Output directory, relative to -dir.
                      Default: "build/properties"
  -filenameOverride   Filename to use instead of the default. Only valid
                      when exactly one environment is generated.

Nothing is written unless every environment validates.
`,
		run: runGenerate,
	},
	{
		name:  "validate",
		short: "Validate the declaration without writing files",
		usage: "propactive validate [-environments test,prod] [-implementationClass Name] [-dir root] [-patterns ./...] [-v]",
		long: `Inspect the declaration struct and validate every environment it
declares. No file is rendered or written.

  -environments       Comma separated environments to report.
                      Default: "*" (every declared environment)
  -implementationClass
                      Declaration struct, "Name" or "import/path.Name".
                      Default: "ApplicationProperties"
`,
		run: runValidate,
	},
	{
		name:  "init",
		short: "Create .propactive/settings.yaml",
		usage: "propactive init [-dir root] [-yes]",
		long: `Prompt for the declaration struct, environments and destination and
write them to .propactive/settings.yaml under -dir.

Errors if a settings file already exists. -yes accepts every default
without prompting.
`,
		run: runInit,
	},
}

var logger = newLogger(os.Stderr)

func newLogger(w io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	l.SetLevel(log.InfoLevel)
	return l
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "propactive: environment-scoped application properties\n\n")
	fmt.Fprintf(w, "Usage:\n  propactive <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'propactive help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "propactive: unknown command %q\n\nRun 'propactive help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'propactive help' for usage.", args[0])
}

// ---------------------------------------------------------------------------
// flags
// ---------------------------------------------------------------------------

// runFlags holds the flags shared by generate and validate.
type runFlags struct {
	dir                 string
	environments        string
	implementationClass string
	destination         string
	filenameOverride    string
	patterns            string
	dryRun              bool
	verbose             bool
}

func parseRunFlags(name string, args []string, writes bool) (*runFlags, error) {
	f := &runFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.dir, "dir", ".", "module root to inspect")
	fs.StringVar(&f.environments, "environments", "", "comma separated environments")
	fs.StringVar(&f.implementationClass, "implementationClass", "", "declaration struct")
	fs.StringVar(&f.patterns, "patterns", "", "comma separated package patterns")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	if writes {
		fs.StringVar(&f.destination, "destination", "", "output directory")
		fs.StringVar(&f.filenameOverride, "filenameOverride", "", "output filename for a single environment")
		fs.BoolVar(&f.dryRun, "dry-run", false, "report files without writing them")
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%s: unexpected arguments %v", name, fs.Args())
	}
	return f, nil
}

func (f *runFlags) layer() settings.Settings {
	return settings.Settings{
		ImplementationClass: strings.TrimSpace(f.implementationClass),
		Environments:        pipeline.ParseEnvironments(f.environments),
		Destination:         strings.TrimSpace(f.destination),
		FilenameOverride:    strings.TrimSpace(f.filenameOverride),
		Patterns:            pipeline.ParseEnvironments(f.patterns),
	}
}

// resolve merges settings and returns the options plus the package patterns.
func (f *runFlags) resolve() (pipeline.Options, []string, error) {
	if f.verbose {
		logger.SetLevel(log.DebugLevel)
	}
	s, path, err := settings.Resolve(f.dir, os.LookupEnv, f.layer())
	if err != nil {
		return pipeline.Options{}, nil, err
	}
	if path != "" {
		logger.WithFields(log.Fields{"path": path}).Debug("Loaded settings")
	}
	opts := s.Options()
	if !filepath.IsAbs(opts.Destination) {
		opts.Destination = filepath.Join(f.dir, opts.Destination)
	}
	return opts, []string(s.Patterns), nil
}

// observe logs every pipeline stage at debug level.
func observe(stage pipeline.Stage, detail any) {
	entry := logger.WithFields(log.Fields{"stage": stage})
	switch d := detail.(type) {
	case nil:
		entry.Debug("Pipeline stage")
	case error:
		entry.WithFields(log.Fields{"err": d}).Debug("Pipeline stage failed")
	case *environment.Set:
		entry.WithFields(log.Fields{"environments": d.Names()}).Debug("Pipeline stage")
	case []file.Generated:
		names := make([]string, len(d))
		for i, g := range d {
			names[i] = g.Filename
		}
		entry.WithFields(log.Fields{"files": names}).Debug("Pipeline stage")
	case file.Generated:
		entry.WithFields(log.Fields{"environment": d.Environment, "file": d.Filename}).Debug("Pipeline stage")
	default:
		entry.WithFields(log.Fields{"detail": fmt.Sprintf("%v", d)}).Debug("Pipeline stage")
	}
}

func warnUnmatched(names []string) {
	if len(names) == 0 {
		return
	}
	logger.WithFields(log.Fields{"requested": strings.Join(names, ",")}).Warn("Requested environments are not declared")
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func runGenerate(args []string) error {
	f, err := parseRunFlags("generate", args, true)
	if err != nil {
		return err
	}
	opts, patterns, err := f.resolve()
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"environments":        strings.Join(opts.Environments, ","),
		"implementationClass": opts.ImplementationClass,
	}).Info("Generating application properties")

	var w file.Writer = file.DirWriter{}
	if f.dryRun {
		w = file.DryRunWriter{}
	}
	runner := pipeline.Runner{Observer: observe}
	res, err := runner.Generate(inspect.Descriptor(f.dir, patterns, opts.ImplementationClass), opts, w)
	if res != nil {
		warnUnmatched(res.Unmatched)
	}
	if err != nil {
		if res != nil && len(res.Written) > 0 {
			logger.WithFields(log.Fields{"written": res.Written}).Warn("Some files were written before the failure")
		}
		return err
	}
	for _, path := range res.Written {
		logger.WithFields(log.Fields{"path": path, "dryRun": f.dryRun}).Info("Wrote application properties")
	}
	logger.WithFields(log.Fields{"destination": opts.Destination, "files": len(res.Written)}).Info("Done")
	return nil
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func runValidate(args []string) error {
	f, err := parseRunFlags("validate", args, false)
	if err != nil {
		return err
	}
	opts, patterns, err := f.resolve()
	if err != nil {
		return err
	}
	runner := pipeline.Runner{Observer: observe}
	set, err := runner.Validate(inspect.Descriptor(f.dir, patterns, opts.ImplementationClass), opts)
	if err != nil {
		return err
	}
	warnUnmatched(file.Unmatched(opts.Environments, set.Names()))
	for _, env := range set.All() {
		logger.WithFields(log.Fields{"environment": env.Name, "properties": len(env.Properties)}).Info("Valid")
	}
	return nil
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func initQuestions() []prompt.Question {
	d := settings.Defaults()
	return []prompt.Question{
		{Key: "implementationClass", Prompt: "Declaration struct", Default: d.ImplementationClass},
		{Key: "environments", Prompt: "Environments (comma separated)", Default: strings.Join(d.Environments, ",")},
		{Key: "destination", Prompt: "Destination directory", Default: d.Destination},
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dir := fs.String("dir", ".", "project root")
	yes := fs.Bool("yes", false, "accept defaults without prompting")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	questions := initQuestions()
	answers := make(map[string]string, len(questions))
	if *yes {
		for _, q := range questions {
			answers[q.Key] = q.Default
		}
	} else {
		var err error
		if answers, err = prompt.Ask(questions, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
	}

	path, err := settings.Save(*dir, settings.Settings{
		ImplementationClass: answers["implementationClass"],
		Environments:        pipeline.ParseEnvironments(answers["environments"]),
		Destination:         answers["destination"],
	})
	if err != nil {
		if errors.Is(err, settings.ErrExists) {
			return fmt.Errorf("init: %w (edit it instead)", err)
		}
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}
