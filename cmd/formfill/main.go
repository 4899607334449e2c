// Command formfill fills a form document interactively in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-form-filler/internal/filler"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/extraction"
	"github.com/a3tai/mcp-form-filler/internal/question"
	"github.com/a3tai/mcp-form-filler/internal/session"
)

type options struct {
	Path    string
	Output  string
	Summary bool
	Author  string
	Verbose bool
	LLM     question.LLMConfig
	OCR     extraction.OCRConfig
}

func parseOptions(args []string) (*options, error) {
	fs := pflag.NewFlagSet("formfill", pflag.ContinueOnError)
	out := fs.StringP("output", "o", "", "Filled PDF path (default <name>-filled.pdf next to the input)")
	summary := fs.Bool("summary", false, "Also write an .xlsx sheet of the answers")
	author := fs.String("author", "", "Author written into the filled document")
	verbose := fs.BoolP("verbose", "v", false, "Log extraction and fill details to stderr")
	lang := fs.String("ocr-lang", "eng", "OCR language for scanned images")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// the question model is configured the same way as the MCP server
	env := viper.New()
	env.SetEnvPrefix("MCP_FORM")
	env.AutomaticEnv()

	o := &options{
		Output:  *out,
		Summary: *summary,
		Author:  *author,
		Verbose: *verbose,
		LLM: question.LLMConfig{
			APIKey:  env.GetString("LLM_APIKEY"),
			BaseURL: env.GetString("LLM_BASEURL"),
			Model:   env.GetString("LLM_MODEL"),
		},
		OCR: extraction.OCRConfig{Tesseract: env.GetString("OCR_TESSERACT"), Lang: *lang},
	}
	if o.LLM.APIKey != "" && o.LLM.Model == "" {
		o.LLM.Model = "gpt-4o-mini"
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected one document, got %d", fs.NArg())
	}
	if fs.NArg() == 1 {
		o.Path = fs.Arg(0)
	}
	return o, nil
}

var (
	title   = color.New(color.FgCyan, color.Bold).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
	subtle  = color.New(color.Faint).SprintFunc()
	heading = color.New(color.Bold).SprintFunc()
)

// app runs one interactive session against the service
type app struct {
	service *filler.Service
	prompt  prompter
	out     io.Writer
}

func (a *app) run(ctx context.Context, o *options) error {
	path := o.Path
	if path == "" {
		p, err := a.prompt.Input(ctx, "Document to fill:", "A PDF form or a scanned form image")
		if err != nil {
			return err
		}
		path = p
	}

	output := o.Output
	if output == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		output = filepath.Join(filepath.Dir(path), base+"-filled.pdf")
	}

	intake, err := a.service.Intake(ctx, path)
	if err != nil {
		return err
	}
	a.printIntake(intake)

	fields := make(map[string]form.FormField, len(intake.Fields))
	for _, f := range intake.Fields {
		fields[f.ID] = f
	}

	message, fieldID := intake.Question, intake.FieldID
	for fieldID != "" {
		answer, err := a.ask(ctx, fields[fieldID], message)
		if err != nil {
			_ = a.service.Dispose(intake.SessionID)
			return err
		}

		reply, err := a.service.Answer(ctx, intake.SessionID, answer)
		if err != nil {
			return err
		}
		a.printReply(reply)
		if reply.Complete {
			break
		}
		message, fieldID = reply.Message, reply.FieldID
	}

	ok, err := a.prompt.Confirm(ctx, "Write the filled document?", true)
	if err != nil || !ok {
		_ = a.service.Dispose(intake.SessionID)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, subtle("Nothing written."))
		return nil
	}

	res, err := a.service.Export(ctx, intake.SessionID, filler.ExportRequest{Output: output, Summary: o.Summary})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s (%s)\n", good("Written:"), res.Path, res.Strategy)
	if res.SummaryPath != "" {
		fmt.Fprintf(a.out, "%s %s\n", good("Answers:"), res.SummaryPath)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(a.out, "%s %v\n", bad("Not placed:"), res.Skipped)
	}
	return nil
}

// ask shows the question for field and returns the raw answer
func (a *app) ask(ctx context.Context, field form.FormField, message string) (string, error) {
	if field.Type == form.TypeCheckbox {
		checked, err := a.prompt.Confirm(ctx, message, false)
		if err != nil {
			return "", err
		}
		if checked {
			return "yes", nil
		}
		return "no", nil
	}

	help := string(field.Type)
	if !field.Required {
		help += ", optional: answer skip to leave it blank"
	}
	return a.prompt.Input(ctx, message, help)
}

func (a *app) printIntake(intake *filler.IntakeResult) {
	fmt.Fprintln(a.out, title("Form: "+intake.Document))
	kind := "detected from text"
	if intake.IsNativeForm {
		kind = "interactive PDF form"
	}
	fmt.Fprintf(a.out, "%s %d fields, %s\n\n", heading("Found"), len(intake.Fields), kind)
	for i, f := range intake.Fields {
		marker := " "
		if f.Required {
			marker = "*"
		}
		fmt.Fprintf(a.out, "  %s %2d. %s %s\n", marker, i+1, f.Label, subtle("("+string(f.Type)+")"))
	}
	fmt.Fprintln(a.out)
}

func (a *app) printReply(reply *session.Reply) {
	switch {
	case reply.Complete:
		fmt.Fprintln(a.out, good("✔ "+reply.Message))
	case reply.Accepted:
		fmt.Fprintln(a.out, good(fmt.Sprintf("✔ %d/%d", reply.Cursor, reply.Total)))
	default:
		fmt.Fprintln(a.out, bad("✘ "+reply.Message))
	}
}

func newService(ctx context.Context, o *options, logger *slog.Logger) (*filler.Service, error) {
	generator, err := question.NewGenerator(ctx, o.LLM, logger)
	if err != nil {
		return nil, err
	}
	return filler.NewService(filler.Config{
		Workers: 1,
		Author:  o.Author,
		OCR:     o.OCR,
	}, filler.WithGenerator(generator), filler.WithLogger(logger))
}

func main() {
	o, err := parseOptions(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, bad(err.Error()))
		os.Exit(2)
	}

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx, o, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, bad(err.Error()))
		os.Exit(1)
	}
	defer service.Close()

	a := &app{service: service, prompt: surveyPrompter{}, out: color.Output}
	if err := a.run(ctx, o); err != nil {
		if errors.Is(err, errAborted) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, subtle("cancelled"))
			return
		}
		fmt.Fprintln(os.Stderr, bad(err.Error()))
		stop()
		os.Exit(1)
	}
}
