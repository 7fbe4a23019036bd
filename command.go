package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"heicconv/codec"
	"heicconv/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// DefaultQuality is used when neither a flag, the environment nor the
// prompt provides one.
const DefaultQuality = 50

const (
	envQuality  = "HEICCONV_QUALITY"
	envCodec    = "HEICCONV_CODEC"
	envWorkers  = "HEICCONV_WORKERS"
	envLogLevel = "LOG_LEVEL"
)

type Config struct {
	InputPath string
	Quality   int
	Codec     string
	Workers   int
	KeepGoing bool
	Verbose   bool
	JSONLog   bool
	NoColor   bool

	// qualityFixed is set once the quality came from a flag or the
	// environment, so the interactive prompt leaves it alone.
	qualityFixed bool
}

func Execute() error {
	if err := loadEnv(".env"); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func loadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "heicconv [file or directory]",
		Short: "Convert JPEG and PNG images to HEIC",
		Long: `heicconv re-encodes JPEG and PNG images into HEIF containers.

Given a file it converts that file. Given a directory it walks it
recursively and converts every .jpg, .jpeg and .png it finds. Each result
is written next to its source as <name>.heic, replacing any existing
file of that name. Sources are left untouched.

Without a path argument the path (and the quality, unless set by flag or
environment) is read from standard input.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, args)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&cfg.Quality, "quality", "q", DefaultQuality, "encoding quality handed to the codec (1-100)")
	flags.StringVarP(&cfg.Codec, "codec", "c", codec.DefaultCodec, "encoder backend: heif (libvips) or avif")
	flags.IntVarP(&cfg.Workers, "workers", "w", 1, "number of files converted concurrently")
	flags.BoolVar(&cfg.KeepGoing, "keep-going", false, "log failed files and continue instead of aborting")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug output")
	flags.BoolVar(&cfg.JSONLog, "json-log", false, "log as JSON lines")
	flags.BoolVar(&cfg.NoColor, "no-color", false, "disable ANSI colors")

	cmd.SetVersionTemplate(fmt.Sprintf(
		"heicconv %s (built %s, commit %s, %s/%s, %s)\n",
		Version, BuildDate, GitCommit, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))

	return cmd
}

func run(cmd *cobra.Command, cfg *Config, args []string) error {
	if err := cfg.applyEnv(cmd.Flags()); err != nil {
		return err
	}

	if len(args) == 1 {
		cfg.InputPath = args[0]
	} else if err := cfg.prompt(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return err
	}

	if err := cfg.validate(); err != nil {
		return err
	}

	console := logger.NewConsole(cfg.loggerOptions(cmd.OutOrStdout()))

	if unavailable := codec.RegisterDefaults(); len(unavailable) > 0 {
		console.Debug("Codecs unavailable on this machine: %s", strings.Join(unavailable, ", "))
	}

	c, err := codec.Get(cfg.Codec)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Verbose && !cfg.JSONLog {
		console.Box("heicconv settings", cfg.summary())
	}

	return NewProcessor(cfg, c, console).ProcessPath(cmd.Context(), cfg.InputPath)
}

// applyEnv fills every setting whose flag was not given from the
// environment.
func (cfg *Config) applyEnv(flags *pflag.FlagSet) error {
	if flags.Changed("quality") {
		cfg.qualityFixed = true
	} else if v, ok := os.LookupEnv(envQuality); ok {
		q, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("configuration error: %s=%q is not an integer", envQuality, v)
		}
		cfg.Quality = q
		cfg.qualityFixed = true
	}

	if v, ok := os.LookupEnv(envCodec); ok && !flags.Changed("codec") {
		cfg.Codec = strings.TrimSpace(v)
	}

	if v, ok := os.LookupEnv(envWorkers); ok && !flags.Changed("workers") {
		w, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("configuration error: %s=%q is not an integer", envWorkers, v)
		}
		cfg.Workers = w
	}

	return nil
}

// prompt asks for the input path and, unless already fixed, the quality.
func (cfg *Config) prompt(in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)

	path, err := readLine(r, out, "Enter path to a file or directory: ")
	if err != nil {
		return err
	}
	cfg.InputPath = path

	if cfg.qualityFixed {
		return nil
	}

	answer, err := readLine(r, out, fmt.Sprintf("Enter quality (1-100) [%d]: ", cfg.Quality))
	if err != nil {
		return err
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return nil
	}

	q, err := strconv.Atoi(answer)
	if err != nil {
		return fmt.Errorf("configuration error: quality %q is not an integer", answer)
	}
	cfg.Quality = q
	cfg.qualityFixed = true
	return nil
}

// readLine prints label and returns the next line without its line
// ending. Input ending without a newline is accepted.
func readLine(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)

	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (cfg *Config) validate() error {
	if cfg.Workers < 1 {
		return fmt.Errorf("configuration error: workers must be at least 1")
	}
	if strings.TrimSpace(cfg.Codec) == "" {
		return fmt.Errorf("configuration error: codec must not be empty")
	}
	return nil
}

func (cfg *Config) loggerOptions(out io.Writer) *logger.RichLoggerOptions {
	opts := logger.DefaultOptions()
	opts.Output = out
	opts.EnableJSON = cfg.JSONLog
	opts.EnableColors = !cfg.NoColor && !cfg.JSONLog
	if cfg.JSONLog {
		opts.TimeFormat = "2006-01-02T15:04:05.000Z07:00"
	}

	if cfg.Verbose {
		opts.Level = slog.LevelDebug
	} else {
		opts.Level = logger.ParseLevel(os.Getenv(envLogLevel))
	}
	return opts
}

func (cfg *Config) summary() string {
	return strings.Join([]string{
		"Path:       " + cfg.InputPath,
		"Codec:      " + cfg.Codec,
		"Quality:    " + strconv.Itoa(cfg.Quality),
		"Workers:    " + strconv.Itoa(cfg.Workers),
		"Keep going: " + strconv.FormatBool(cfg.KeepGoing),
	}, "\n")
}
