package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/syllable"
	"github.com/CTAG07/Wordagen/pkg/wordagen"
)

const (
	namesSource    = "names"
	surnamesSource = "surnames"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath   string
	cacheDir     string
	cacheBackend string
	logLevel     string
	verbose      bool
}

// generateFlags are the root command's generation flags.
type generateFlags struct {
	markov      bool
	order       int
	cutoff      float64
	words       string
	length      string
	count       int
	single      bool
	token       bool
	name        bool
	prefix      string
	suffix      string
	trace       bool
	novel       bool
	seed        uint64
	workers     int
	maxAttempts int
}

// buildRootCmd constructs the command tree. Each call returns an independent
// tree so flag state never leaks between invocations.
func buildRootCmd() *cobra.Command {
	g := &globalFlags{}
	f := &generateFlags{}

	root := &cobra.Command{
		Use:   "wordagen",
		Short: "Generate pronounceable nonsense words",
		Long: "wordagen generates pronounceable nonsense words, either from simple syllable rules or\n" +
			"from a character-level Markov chain trained on a real word list.",
		Example: "  wordagen\n" +
			"  wordagen --markov --words=es --count 20\n" +
			"  wordagen --single --length 8-12\n" +
			"  wordagen --name --count 5\n" +
			"  wordagen --suffix ing --length 6-10",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, g, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (.json, .yaml or .toml; defaults to $"+envConfig+")")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "directory for word lists and cached models (defaults to $"+envCacheDir+")")
	pf.StringVar(&g.cacheBackend, "cache-backend", backendFile, "model cache backend: file|sqlite")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log initialization details to stderr")

	fl := root.Flags()
	fl.BoolVar(&f.markov, "markov", false, "use the Markov chain generator")
	fl.IntVar(&f.order, "order", 2, "Markov chain order")
	fl.Float64Var(&f.cutoff, "cutoff", 0.1, "drop transitions below this fraction of a context's most likely one")
	fl.StringVar(&f.words, "words", "en", "word list to train on: a named list, an http(s) URL or file:PATH")
	fl.StringVar(&f.length, "length", "", "word length range, e.g. 5-8 or 6 for an exact length")
	fl.IntVar(&f.count, "count", 0, "number of words, tokens or names (default 50 words, 1 token or name)")
	fl.BoolVar(&f.single, "single", false, "generate a single word")
	fl.BoolVar(&f.token, "token", false, "generate tokens of three words joined by dashes")
	fl.BoolVar(&f.name, "name", false, "generate a capitalized first and last name")
	fl.StringVar(&f.prefix, "prefix", "", "start every word with this prefix")
	fl.StringVar(&f.suffix, "suffix", "", "end every word with this suffix")
	fl.BoolVar(&f.trace, "trace", false, "print each generation step to stderr")
	fl.BoolVar(&f.novel, "novel", true, "never output a word from the training list")
	fl.Uint64Var(&f.seed, "seed", 0, "seed for reproducible output")
	fl.IntVar(&f.workers, "workers", 1, "goroutines used for Markov batches")
	fl.IntVar(&f.maxAttempts, "max-attempts", 0, "attempts per word before giving up (default from config)")
	root.MarkFlagsMutuallyExclusive("single", "token", "name")
	root.MarkFlagsMutuallyExclusive("prefix", "suffix")

	root.AddCommand(
		buildListCmd(),
		buildCacheCmd(g),
		buildServeCmd(g),
		buildConfigCmd(g),
		buildVersionCmd(),
	)
	return root
}

// loadConfig resolves the configuration for cmd: defaults, then the config
// file, then environment variables, then persistent flags.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*Config, error) {
	config, err := LoadConfig(resolveConfigPath(g.configPath))
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		config.Cache.Dir = expandHome(g.cacheDir)
	}
	if flags.Changed("cache-backend") {
		config.Cache.Backend = g.cacheBackend
	}
	if flags.Changed("log-level") {
		config.LogLevel = g.logLevel
	} else if g.verbose {
		config.LogLevel = "info"
	}
	return config, nil
}

// openApp loads the configuration and wires an app that logs to cmd's
// error stream.
func (g *globalFlags) openApp(cmd *cobra.Command, fallbackLevel slog.Level) (*app, error) {
	config, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(config, cmd.ErrOrStderr(), fallbackLevel)
}

// wordSource draws words for one output mode.
type wordSource interface {
	Generate(ctx context.Context, rng *rand.Rand) (string, error)
	Batch(ctx context.Context, count int, rng *rand.Rand) ([]string, error)
}

type markovSource struct {
	gen  *markov.Generator
	opts []markov.GenerateOption
}

func (s markovSource) Generate(ctx context.Context, rng *rand.Rand) (string, error) {
	word, err := s.gen.Generate(ctx, rng, s.opts...)
	if err != nil {
		recordGenerationError(err)
		return "", err
	}
	recordWords("markov", 1)
	return word, nil
}

func (s markovSource) Batch(ctx context.Context, count int, rng *rand.Rand) ([]string, error) {
	words, err := s.gen.GenerateBatch(ctx, count, rng, s.opts...)
	if err != nil {
		recordGenerationError(err)
		return nil, err
	}
	recordWords("markov", len(words))
	return words, nil
}

type syllableSource struct {
	gen    *syllable.Generator
	length lengthRange
}

func (s syllableSource) Generate(ctx context.Context, rng *rand.Rand) (string, error) {
	word, err := s.gen.Generate(ctx, rng, s.length.Min, s.length.Max)
	if err != nil {
		recordGenerationError(err)
		return "", err
	}
	recordWords("syllable", 1)
	return word, nil
}

func (s syllableSource) Batch(ctx context.Context, count int, rng *rand.Rand) ([]string, error) {
	words, err := s.gen.GenerateBatch(ctx, count, rng, s.length.Min, s.length.Max)
	if err != nil {
		recordGenerationError(err)
		return nil, err
	}
	recordWords("syllable", len(words))
	return words, nil
}

func recordGenerationError(err error) {
	switch {
	case errors.Is(err, markov.ErrGenerationExhausted):
		recordFailure("exhausted")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		recordFailure("cancelled")
	case wordagen.IsConfigError(err):
		recordFailure("invalid")
	default:
		recordFailure("error")
	}
}

// newRNG seeds a generator from seed when it was given, otherwise randomly.
func newRNG(seed uint64, seeded bool) *rand.Rand {
	if seeded {
		return rand.New(rand.NewPCG(seed, seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func runGenerate(cmd *cobra.Command, g *globalFlags, f *generateFlags) error {
	config, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	gen := config.Generation
	if flags.Changed("order") {
		gen.Order = f.order
	}
	if flags.Changed("cutoff") {
		gen.Cutoff = f.cutoff
	}
	if flags.Changed("words") {
		gen.Source = f.words
	}
	if flags.Changed("novel") {
		gen.Novel = f.novel
	}
	if flags.Changed("workers") {
		gen.Workers = f.workers
	}
	if flags.Changed("max-attempts") {
		gen.MaxAttempts = f.maxAttempts
	}
	config.Generation = gen

	if f.name && flags.Changed("words") {
		return errors.New("--name cannot be combined with --words: name mode uses the names and surnames lists")
	}

	// Any departure from the default model selects Markov mode.
	useMarkov := f.markov || gen.Markov || f.name ||
		gen.Options != wordagen.DefaultOptions() ||
		f.prefix != "" || f.suffix != "" || f.trace

	length := defaultLength(f)
	if flags.Changed("length") {
		if length, err = parseLength(f.length); err != nil {
			return err
		}
	}
	count := f.count
	if !flags.Changed("count") {
		count = 50
		if f.name || f.token {
			count = 1
		}
	}
	if count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", count)
	}

	a, err := newApp(config, cmd.ErrOrStderr(), slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rng := newRNG(f.seed, flags.Changed("seed"))
	out := cmd.OutOrStdout()

	if !useMarkov {
		a.logger.Info("Initializing syllable generator")
		return writeWords(ctx, out, f, syllableSource{gen: a.syllable, length: length}, count, rng)
	}

	a.logger.Info("Initializing Markov generator", "order", gen.Order, "cutoff", gen.Cutoff)
	opts := []markov.GenerateOption{
		markov.WithLengthRange(length.Min, length.Max),
		markov.WithMaxAttempts(gen.MaxAttempts),
		markov.WithWorkers(gen.Workers),
	}
	switch {
	case f.prefix != "":
		opts = append(opts, markov.WithPrefix(f.prefix))
	case f.suffix != "":
		gen.Reversed = true
		opts = append(opts, markov.WithSuffix(f.suffix))
	}
	if f.trace {
		errOut := cmd.ErrOrStderr()
		opts = append(opts, markov.WithWorkers(1), markov.WithTrace(func(step markov.TraceStep) {
			writeTrace(errOut, step)
		}))
	}

	if f.name {
		first, err := markovSourceFor(ctx, a, gen, namesSource, opts)
		if err != nil {
			return err
		}
		last, err := markovSourceFor(ctx, a, gen, surnamesSource, opts)
		if err != nil {
			return err
		}
		return writeNames(ctx, out, first, last, count, rng)
	}

	src, err := markovSourceFor(ctx, a, gen, gen.Source, opts)
	if err != nil {
		return err
	}
	return writeWords(ctx, out, f, src, count, rng)
}

// markovSourceFor builds the generator for source, adding the real-word
// filter when novel output is requested.
func markovSourceFor(ctx context.Context, a *app, gen GenerationConfig, source string, opts []markov.GenerateOption) (markovSource, error) {
	modelOpts := gen.Options
	modelOpts.Source = source
	g, err := a.service.Generator(ctx, modelOpts)
	if err != nil {
		return markovSource{}, err
	}
	if gen.Novel {
		words, err := a.service.Words(ctx, source)
		if err != nil {
			return markovSource{}, err
		}
		opts = append(opts[:len(opts):len(opts)], markov.WithReject(wordagen.RejectKnown(words)))
	}
	return markovSource{gen: g, opts: opts}, nil
}

func defaultLength(f *generateFlags) lengthRange {
	switch {
	case f.single:
		return lengthRange{Min: 8, Max: 12}
	case f.token:
		return lengthRange{Min: 5, Max: 8}
	case f.name:
		return lengthRange{Min: 6, Max: 20}
	default:
		return lengthRange{Min: 5, Max: 12}
	}
}

// writeWords prints count items in the output mode f selects.
func writeWords(ctx context.Context, w io.Writer, f *generateFlags, src wordSource, count int, rng *rand.Rand) error {
	switch {
	case f.single:
		word, err := src.Generate(ctx, rng)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, word)
		return err
	case f.token:
		for i := 0; i < count; i++ {
			words, err := src.Batch(ctx, tokenWords, rng)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintln(w, strings.Join(words, "-")); err != nil {
				return err
			}
		}
		return nil
	default:
		words, err := src.Batch(ctx, count, rng)
		if err != nil {
			return err
		}
		return writeGrid(w, words)
	}
}

// writeNames prints count lines of "First Last".
func writeNames(ctx context.Context, w io.Writer, first, last wordSource, count int, rng *rand.Rand) error {
	firsts, err := first.Batch(ctx, count, rng)
	if err != nil {
		return err
	}
	lasts, err := last.Batch(ctx, count, rng)
	if err != nil {
		return err
	}
	for i := range firsts {
		if _, err = fmt.Fprintln(w, capitalize(firsts[i])+" "+capitalize(lasts[i])); err != nil {
			return err
		}
	}
	return nil
}
