package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"quantumquery/internal/app"
	"quantumquery/internal/config"
	"quantumquery/internal/logger"
	"quantumquery/internal/qa"
)

var errRemote = errors.New("completion service returned an error")

type CLI struct {
	Question string `arg:"" help:"The question to ask."`
	PDF      string `help:"PDF file to use as context." type:"existingfile" optional:""`
	Image    string `help:"PNG or JPEG image to use as context." type:"existingfile" optional:""`
	APIKey   string `help:"Groq API key. Overrides GROQ_API_KEY." name:"api-key"`
	LogLevel string `help:"The log level to use." env:"LOG_LEVEL" default:"warn"`
}

func main() {
	var cli CLI
	ctx := context.Background()
	kctx := kong.Parse(&cli,
		kong.Name("ask"),
		kong.Description("Ask a question, optionally grounded in a PDF or an image."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := kctx.Run(); err != nil {
		if !errors.Is(err, errRemote) {
			logger.NewWithWriter(os.Stderr, "error").Error("error", slog.Any("error", err))
		}
		os.Exit(1)
	}
}

func (c CLI) Run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	cfg.LogLevel = c.LogLevel
	return c.ask(ctx, cfg, os.Stdout, os.Stderr)
}

// ask prints the answer to stdout and warnings to stderr. A remote failure
// still prints the "Error: ..." answer and then returns errRemote.
func (c CLI) ask(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	req := qa.Request{Question: c.Question, APIKey: c.APIKey}
	var err error
	if req.PDF, err = readOptional(c.PDF); err != nil {
		return err
	}
	if req.Image, err = readOptional(c.Image); err != nil {
		return err
	}

	deps, err := app.BuildWith(cfg, logger.NewWithWriter(stderr, cfg.LogLevel))
	if err != nil {
		return err
	}
	defer deps.Close()

	resp, err := deps.Service.Ask(ctx, req)
	if errors.Is(err, qa.ErrMissingCredential) {
		return fmt.Errorf("no API key: pass --api-key or set GROQ_API_KEY")
	}
	if err != nil {
		return err
	}

	for _, w := range resp.Warnings {
		fmt.Fprintln(stderr, "warning:", w)
	}
	fmt.Fprintln(stdout, resp.Answer)
	if !resp.OK {
		return errRemote
	}
	return nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
