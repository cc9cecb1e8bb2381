package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/openapi"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/tui"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func newFormsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List the available forms",
		Long: `List every registered form with its fields. Required fields are
marked with an asterisk, using the registration toggles from the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, def := range forms.DefaultRegistry().Definitions() {
				form := def.Build(a.cfg.Features)
				fmt.Fprintf(out, "%s %s\n", color.Cyan.Sprintf("%-22s", def.ID), def.Title)
				for _, field := range form.Fields {
					mark := " "
					if field.IsRequired() {
						mark = color.Yellow.Sprint("*")
					}
					fmt.Fprintf(out, "  %s %-16s %s\n", mark, field.Name, field.Kind)
				}
			}
			return nil
		},
	}
}

type validateOptions struct {
	data    []string
	payload string
	output  string
	lang    string
	submit  bool
	token   string
}

func newValidateCmd(a *app) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <form>",
		Short: "Validate a submission against a form",
		Long: `Validate values against a form and print the messages a user would
see. Values come from repeated --data key=value pairs and/or a --json object;
--data wins on conflicts. Exits with status 2 when the submission is invalid.
With --submit a valid submission is also sent to the identity backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.data, "data", nil, "field value as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.payload, "json", "", "JSON object of field values")
	cmd.Flags().StringVar(&opts.output, "output", outputText, "output format (text or json)")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "language for messages (BCP 47 tag)")
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "send a valid submission to the identity backend")
	cmd.Flags().StringVar(&opts.token, "token", "", "reset token for the change password forms")
	return cmd
}

func (a *app) runValidate(cmd *cobra.Command, formID string, opts *validateOptions) error {
	values, err := parseValues(opts.payload, opts.data)
	if err != nil {
		return err
	}
	if opts.output != outputText && opts.output != outputJSON {
		return fmt.Errorf("unsupported output %q", opts.output)
	}
	translator, err := render.DefaultTranslator()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var outcome orchestrator.Outcome
	if opts.submit {
		orch, err := a.orchestrator()
		if err != nil {
			return err
		}
		outcome, err = orch.Submit(ctx, orchestrator.SubmitRequest{FormID: formID, Values: values, Token: opts.token})
		if err != nil {
			return err
		}
	} else {
		orch, err := newOrchestrator(a.cfg, nil)
		if err != nil {
			return err
		}
		form, err := orch.Validate(ctx, formID, values)
		if err != nil {
			return err
		}
		outcome = orchestrator.Outcome{Form: form}
	}
	if outcome.BackendErr != nil {
		a.log.DebugContext(ctx, "backend rejected submission", "form", formID, "error", outcome.BackendErr)
	}

	rendered := outcome.RenderOptions(render.RenderOptions{
		Locale:     translator.Match(opts.lang).String(),
		Translator: translator,
	})
	report := validationReport{
		Form:   formID,
		Valid:  outcome.Accepted(),
		Errors: render.LocalizeMessages(rendered.Errors, rendered),
	}
	for _, msg := range rendered.FormErrors {
		report.FormErrors = append(report.FormErrors, rendered.Translate(msg))
	}

	out := cmd.OutOrStdout()
	if opts.output == outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		report.print(out)
	}
	if !report.Valid {
		return errInvalid
	}
	return nil
}

type validationReport struct {
	Form       string              `json:"form"`
	Valid      bool                `json:"valid"`
	Errors     map[string][]string `json:"errors,omitempty"`
	FormErrors []string            `json:"form_errors,omitempty"`
}

func (r validationReport) print(w io.Writer) {
	if r.Valid {
		fmt.Fprintln(w, color.Green.Sprintf("✓ %s is valid", r.Form))
		return
	}
	fmt.Fprintln(w, color.Red.Sprintf("✗ %s is invalid", r.Form))
	for _, msg := range r.FormErrors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
	names := make([]string, 0, len(r.Errors))
	for name := range r.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, msg := range r.Errors[name] {
			fmt.Fprintf(w, "  %s: %s\n", color.Yellow.Sprint(name), msg)
		}
	}
}

// parseValues merges a JSON object with key=value pairs.
func parseValues(payload string, pairs []string) (map[string]any, error) {
	values, err := forms.ValuesFromJSON([]byte(payload))
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --data %q is not key=value", forms.ErrMalformedInput, pair)
		}
		values[key] = value
	}
	return values, nil
}

type promptOptions struct {
	format string
	lang   string
	submit bool
	token  string
}

func newPromptCmd(a *app) *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "prompt <form>",
		Short: "Fill in a form interactively",
		Long: `Ask for each field of a form in the terminal, re-asking until the value
is valid, then print the collected values. With --submit the values are sent
to the identity backend instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPrompt(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", string(tui.OutputFormatJSON), "output format (json, form or pretty)")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "language for prompts (BCP 47 tag)")
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "send the values to the identity backend")
	cmd.Flags().StringVar(&opts.token, "token", "", "reset token for the change password forms")
	return cmd
}

func (a *app) runPrompt(cmd *cobra.Command, formID string, opts *promptOptions) error {
	format, ok := tui.ParseOutputFormat(opts.format)
	if !ok {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if opts.submit {
		format = tui.OutputFormatJSON
	}

	driver := a.deps.PromptDriver
	if driver == nil {
		driver = tui.NewSurveyDriver(cmd.ErrOrStderr())
	}
	renderer, err := tui.New(tui.WithPromptDriver(driver), tui.WithOutputFormat(format))
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(renderer)
	if err != nil {
		return err
	}
	translator, err := render.DefaultTranslator()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out, err := orch.Generate(ctx, orchestrator.Request{
		FormID:   formID,
		Renderer: renderer.Name(),
		RenderOptions: render.RenderOptions{
			Locale:     translator.Match(opts.lang).String(),
			Translator: translator,
		},
	})
	if err != nil {
		return err
	}
	if !opts.submit {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(out), "\n"))
		return err
	}

	values, err := forms.ValuesFromJSON(out)
	if err != nil {
		return err
	}
	outcome, err := orch.Submit(ctx, orchestrator.SubmitRequest{FormID: formID, Values: values, Token: opts.token})
	if err != nil {
		return err
	}
	if !outcome.Accepted() {
		rendered := outcome.RenderOptions(render.RenderOptions{Locale: translator.Match(opts.lang).String(), Translator: translator})
		report := validationReport{Form: formID, Errors: render.LocalizeMessages(rendered.Errors, rendered)}
		for _, msg := range rendered.FormErrors {
			report.FormErrors = append(report.FormErrors, rendered.Translate(msg))
		}
		report.print(cmd.OutOrStdout())
		return errInvalid
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.Green.Sprintf("✓ %s accepted", formID))
	return nil
}

type openAPIOptions struct {
	format string
	output string
	title  string
}

func newOpenAPICmd(a *app) *cobra.Command {
	opts := &openAPIOptions{}
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document for the form endpoints",
		Long: `Export one schema per form and one POST operation per served route.
Registration toggles from the config decide which fields are required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runOpenAPI(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", outputYAML, "output format (yaml or json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVar(&opts.title, "title", "", "document title")
	return cmd
}

func (a *app) runOpenAPI(cmd *cobra.Command, opts *openAPIOptions) error {
	doc, err := openapi.Export(cmd.Context(), forms.DefaultRegistry(), a.cfg.Features, openapi.Info{
		Title:  opts.title,
		Routes: openapi.DefaultRoutes(a.cfg.Terms.Enabled),
	})
	if err != nil {
		return err
	}

	var raw []byte
	switch opts.format {
	case outputYAML:
		raw, err = openapi.MarshalYAML(doc)
	case outputJSON:
		raw, err = openapi.MarshalJSON(doc)
	default:
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err := cmd.OutOrStdout().Write(raw)
		return err
	}
	if err := os.WriteFile(opts.output, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.Green.Sprintf("OpenAPI document written to %s", opts.output))
	return nil
}
