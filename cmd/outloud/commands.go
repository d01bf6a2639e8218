package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CTAG07/outloud/pkg/bigram"
	"github.com/natefinch/atomic"
)

var (
	errModelFileNotFound = errors.New("model file not found")
	errInvalidModelFile  = errors.New("invalid model file")
	errNoModelSource     = errors.New("either -model or -name is required")
)

// modelSource selects where a command reads its model from: a model file or a
// named model in the SQLite store.
type modelSource struct {
	path string
	name string
}

func (s *modelSource) register(fs *flag.FlagSet) {
	fs.StringVar(&s.path, "model", "", "path to a model file (.json, .msgpack or .mpk)")
	fs.StringVar(&s.name, "name", "", "name of a model in the model database")
}

func (s *modelSource) load(ctx context.Context, env *environment) (*bigram.Model, error) {
	switch {
	case s.path != "" && s.name != "":
		return nil, errors.New("-model and -name are mutually exclusive")
	case s.path != "":
		return loadModelFile(s.path, env.logger)
	case s.name != "":
		store, closeStore, err := openStore(env.config, env.logger)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		return store.LoadModel(ctx, s.name, bigram.WithLogger(env.logger))
	default:
		return nil, errNoModelSource
	}
}

// loadModelFile reads a model file, picking the format from its extension.
func loadModelFile(path string, logger *slog.Logger) (*bigram.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errModelFileNotFound, path)
		}
		return nil, fmt.Errorf("could not open model file: %w", err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	m, err := bigram.ReadModel(file, bigram.FormatFromPath(path), bigram.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errInvalidModelFile, path, err)
	}
	return m, nil
}

// writeModelFile exports m to path, picking the format from its extension.
// The file is replaced atomically.
func writeModelFile(path string, m *bigram.Model) error {
	var buf bytes.Buffer
	if err := m.Export(&buf, bigram.FormatFromPath(path)); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// openStore opens the model database named by the configuration and prepares
// its schema. The returned function closes the store and the database.
func openStore(config *Config, logger *slog.Logger) (*bigram.Store, func(), error) {
	if config.Server.DataDir != "" {
		if err := os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = bigram.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to set up model schema: %w", err)
	}
	store, err := bigram.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to prepare model store: %w", err)
	}
	store.SetLogger(logger)

	return store, func() {
		store.Close()
		_ = db.Close()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

func runTrain(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("train")
	corpusPath := fs.String("corpus", "", "path to the corpus file, one invocation per line")
	var dest modelSource
	fs.StringVar(&dest.path, "model", "", "path to save the trained model (.json, .msgpack or .mpk)")
	fs.StringVar(&dest.name, "name", "", "name to save the trained model under in the model database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" {
		return errors.New("-corpus is required")
	}
	if dest.path == "" && dest.name == "" {
		return errNoModelSource
	}

	corpus, err := os.Open(*corpusPath)
	if err != nil {
		return fmt.Errorf("could not open corpus: %w", err)
	}
	defer func(corpus *os.File) {
		_ = corpus.Close()
	}(corpus)

	m := bigram.NewModel(bigram.WithLogger(env.logger))
	if err = m.Train(ctx, corpus); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if dest.path != "" {
		if err = writeModelFile(dest.path, m); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(env.stdout, "Model saved to %s\n", dest.path)
	}
	if dest.name != "" {
		store, closeStore, err := openStore(env.config, env.logger)
		if err != nil {
			return err
		}
		defer closeStore()
		if err = store.SaveModel(ctx, dest.name, m); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		_, _ = fmt.Fprintf(env.stdout, "Model saved as %s\n", dest.name)
	}
	return nil
}

func runSample(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("sample")
	var src modelSource
	src.register(fs)
	prefix := fs.String("prefix", "", "prefix to start the completion")
	maxTokens := fs.Int("max_tokens", env.config.Sampling.DefaultMaxTokens, "maximum number of tokens to generate")
	seed := fs.Int64("seed", 0, "random seed for deterministic sampling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *maxTokens < 0 {
		return fmt.Errorf("-max_tokens must be non-negative, got %d", *maxTokens)
	}

	m, err := src.load(ctx, env)
	if err != nil {
		return err
	}

	opts := []bigram.SampleOption{bigram.WithMaxTokens(*maxTokens)}
	if isFlagSet(fs, "seed") {
		opts = append(opts, bigram.WithSeed(*seed))
	}
	return writeJSON(env.stdout, m.Sample(*prefix, opts...))
}

func runComplete(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("complete")
	var src modelSource
	src.register(fs)
	prefix := fs.String("prefix", "", "text whose last token is completed")
	limit := fs.Int("limit", env.config.Sampling.CompletionLimit, "maximum number of suggestions, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := src.load(ctx, env)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, m.CompleteToken(*prefix, *limit))
}

func runStats(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("stats")
	var src modelSource
	src.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := src.load(ctx, env)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, m.Stats())
}

func runPrune(ctx context.Context, env *environment, args []string) error {
	fs := env.flagSet("prune")
	var src modelSource
	src.register(fs)
	minFreq := fs.Int("min_freq", 1, "pairs seen this many times or fewer are dropped")
	vocab := fs.Bool("vocab", false, "drop tokens seen fewer than min_freq times, with all their pairs, instead")
	out := fs.String("out", "", "path to write the pruned model to (defaults to replacing the source)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := src.load(ctx, env)
	if err != nil {
		return err
	}

	var pruned *bigram.Model
	if *vocab {
		pruned = m.PrunedVocabulary(*minFreq)
	} else {
		pruned = m.Pruned(*minFreq)
	}

	switch {
	case *out != "":
		if err = writeModelFile(*out, pruned); err != nil {
			return err
		}
	case src.path != "":
		if err = writeModelFile(src.path, pruned); err != nil {
			return err
		}
	default:
		store, closeStore, err := openStore(env.config, env.logger)
		if err != nil {
			return err
		}
		defer closeStore()
		if err = store.SaveModel(ctx, src.name, pruned); err != nil {
			return fmt.Errorf("failed to save pruned model: %w", err)
		}
	}
	return writeJSON(env.stdout, pruned.Stats())
}
