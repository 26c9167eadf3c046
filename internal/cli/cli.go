// Package cli implements the rc4 reference tool:
//
//	rc4 [-config file] <keyfile> <inputfile> <outputfile>
//
// It reads the key and the input, applies the RC4 transform and writes the
// result. Running it again on the output with the same key restores the input.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rc4-stream-go/internal/config"
	"github.com/rc4-stream-go/internal/encryption"
	"github.com/rc4-stream-go/internal/errors"
	"github.com/rc4-stream-go/internal/fileio"
	"github.com/rc4-stream-go/internal/logging"
	"github.com/rc4-stream-go/internal/storage"
	"github.com/rc4-stream-go/internal/trace"
)

// SuccessMessage is printed on the standard stream after a successful run
const SuccessMessage = "Operation complete."

const usage = "Usage: %s [-config file] <keyfile> <inputfile> <outputfile>\n"

// Job is one parsed invocation
type Job struct {
	KeyPath    string
	InputPath  string
	OutputPath string
}

// Run executes the tool and returns the process exit code
func Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "path to a JSON config file")
	fs.Usage = func() { fmt.Fprintf(stderr, usage, name) }
	if err := fs.Parse(args); err != nil {
		return errors.ExitCode(errors.NewUsage(err.Error()))
	}

	if fs.NArg() != 3 {
		fmt.Fprintf(stderr, usage, name)
		return errors.ExitCode(errors.NewUsage("wrong argument count"))
	}
	job := Job{KeyPath: fs.Arg(0), InputPath: fs.Arg(1), OutputPath: fs.Arg(2)}

	logging.Setup(config.LogConfig{Level: "info"}, stderr)
	v := config.New(*configFile)
	config.SetCLIDefaults(v)
	cfg, err := config.LoadFrom(v)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return errors.ExitCode(err)
	}
	logging.Setup(cfg.Log, stderr)

	if err := Execute(ctx, cfg, job); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return errors.ExitCode(err)
	}
	fmt.Fprintln(stdout, SuccessMessage)
	return 0
}

// Execute runs one job. Every check happens before the output is written,
// so a failed job never leaves output behind.
func Execute(ctx context.Context, cfg *config.Config, job Job) error {
	ctx = trace.WithOperation(trace.WithRequestID(ctx, trace.GenerateRequestID()), "transform")
	logger := trace.Logger(ctx)
	start := time.Now()

	perm, err := cfg.OutputPerm()
	if err != nil {
		return errors.NewUsage(err.Error())
	}

	key, err := fileio.ReadKey(job.KeyPath, fileio.PolicyFromConfig(cfg.Key))
	if err != nil {
		return err
	}
	data, err := fileio.ReadData(job.InputPath)
	if err != nil {
		return err
	}

	out, err := encryption.Transform(key, data)
	if err != nil {
		return errors.NewInvalidKey("invalid key", err)
	}
	if err := fileio.WriteOutput(job.OutputPath, out, perm); err != nil {
		return err
	}

	elapsed := time.Since(start)
	logger.Debug().
		Str("input", job.InputPath).
		Str("output", job.OutputPath).
		Int("bytes", len(out)).
		Dur("duration", elapsed).
		Msg("Transform complete")

	record(ctx, cfg, storage.Entry{
		Time:           start,
		Origin:         "cli",
		Source:         job.InputPath,
		Target:         job.OutputPath,
		KeyFingerprint: storage.Fingerprint(key),
		Length:         int64(len(out)),
		Duration:       elapsed,
	})
	return nil
}

// record appends to the journal; the output already exists, so failures only warn
func record(ctx context.Context, cfg *config.Config, e storage.Entry) {
	j, err := storage.Open(cfg, nil)
	if storage.IsLocked(err) {
		log.Debug().Str("data_dir", cfg.DataDir).Msg("Journal busy, entry skipped")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Journal unavailable")
		return
	}
	defer j.Close()

	if err := j.Record(ctx, e); err != nil {
		log.Warn().Err(err).Msg("Failed to record journal entry")
	}
}
