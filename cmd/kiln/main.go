// Command kiln renders a template against a YAML context file.
//
//	kiln -template page.html -context data.yaml
//	echo '{{ 40 + 2 }}' | kiln
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kilnlang/kiln/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		templatePath = flag.String("template", "", "template file to render; reads stdin when empty")
		contextPath  = flag.String("context", "", "YAML file with the render context")
		root         = flag.String("root", "", "template root directory for extends and include; defaults to the template's directory")
		autoEscape   = flag.Bool("autoescape", false, "escape output based on the template file extension")
		strict       = flag.Bool("strict", false, "fail on undefined variables")
		compat       = flag.Bool("compat", false, "enable Python style value methods")
		fuel         = flag.Int64("fuel", 0, "evaluation budget, 0 disables metering")
		trimBlocks   = flag.Bool("trim-blocks", false, "drop the first newline after a block tag")
		lstripBlocks = flag.Bool("lstrip-blocks", false, "strip leading whitespace before block tags")
		keepNewline  = flag.Bool("keep-trailing-newline", false, "keep the final newline of the template")
		blockStart   = flag.String("block-start", "", "custom block start delimiter")
		blockEnd     = flag.String("block-end", "", "custom block end delimiter")
		varStart     = flag.String("var-start", "", "custom variable start delimiter")
		varEnd       = flag.String("var-end", "", "custom variable end delimiter")
		verbose      = flag.Bool("verbose", false, "log configuration and diagnostics")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}
	defer logger.Sync()

	env := runtime.New()
	env.SetSink(runtime.NewZapSink(logger))
	env.SetCompatMode(*compat)
	env.SetFuel(*fuel)
	if *strict {
		env.SetUndefinedBehavior(runtime.UndefinedStrict)
	}
	if *autoEscape {
		env.SetAutoEscapeCallback(runtime.DefaultAutoEscape)
	}

	ws := env.Whitespace()
	ws.TrimBlocks = *trimBlocks
	ws.LstripBlocks = *lstripBlocks
	ws.KeepTrailingNewline = *keepNewline
	env.SetWhitespace(ws)

	syntax := env.Syntax()
	if *blockStart != "" {
		syntax.BlockStart = *blockStart
	}
	if *blockEnd != "" {
		syntax.BlockEnd = *blockEnd
	}
	if *varStart != "" {
		syntax.VariableStart = *varStart
	}
	if *varEnd != "" {
		syntax.VariableEnd = *varEnd
	}
	if err := env.SetSyntax(syntax); err != nil {
		return err
	}

	ctx, err := loadContext(*contextPath)
	if err != nil {
		return err
	}

	var tmpl *runtime.Template
	if *templatePath == "" {
		source, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		out, err := env.RenderString(string(source), ctx)
		if err != nil {
			return renderError(err)
		}
		fmt.Print(out)
		return nil
	}

	dir := *root
	if dir == "" {
		dir = filepath.Dir(*templatePath)
	}
	env.SetLoader(runtime.FilesystemLoader(afero.NewOsFs(), dir))

	name, err := filepath.Rel(dir, *templatePath)
	if err != nil {
		name = filepath.Base(*templatePath)
	}
	logger.Debug("rendering template",
		zap.String("name", name),
		zap.String("root", dir))

	tmpl, err = env.GetTemplate(filepath.ToSlash(name))
	if err != nil {
		return renderError(err)
	}
	if err := tmpl.RenderTo(os.Stdout, ctx); err != nil {
		return renderError(err)
	}
	return nil
}

func loadContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context: %w", err)
	}
	return ctx, nil
}

// renderError prefers the annotated multi-line form when the failure is a
// template diagnostic.
func renderError(err error) error {
	var derr *runtime.Error
	if errors.As(err, &derr) {
		return fmt.Errorf("%s", derr.FullDescription())
	}
	return err
}
