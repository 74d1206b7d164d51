package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/aegea/aegea/internal/command"
)

const commandTemplate = `# aegea {{ .Name }}

{{ .Usage }}

## Usage

    {{ .UsageText }}

## Options

{{ range .Flags }}    {{ . }}
{{ end }}
_Generated {{ .Date }} for aegea {{ .Version }}._
`

type TemplateData struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []string
	Date      string
	Version   string
}

func main() {
	if len(os.Args) < 2 { //nolint:mnd
		fmt.Fprintln(os.Stderr, "usage: docsgen DOCS_DIR")
		os.Exit(2)
	}
	docs := os.Args[1]

	app, err := command.InitApp(context.Background(), []string{"aegea"})
	if err != nil {
		panic(err)
	}

	tmpl := template.Must(template.New("command").Parse(commandTemplate))
	folder := filepath.Join(docs, "commands")
	if err := os.MkdirAll(folder, 0o755); err != nil { //nolint:mnd
		panic(err)
	}

	for _, c := range app.Commands {
		path := filepath.Join(folder, c.Name+".md")
		fmt.Println("Generating", path)

		file, err := os.Create(path)
		if err != nil {
			panic(err)
		}
		if err := render(file, tmpl, c); err != nil {
			panic(err)
		}
		file.Close()
	}
}

func render(w io.Writer, tmpl *template.Template, c *cli.Command) error {
	data := TemplateData{
		Name:      c.Name,
		Usage:     c.Usage,
		UsageText: c.UsageText,
		Date:      time.Now().Format("January 2, 2006"),
		Version:   getVersion(),
	}
	for _, f := range c.Flags {
		data.Flags = append(data.Flags, strings.ReplaceAll(f.String(), "\t", "  "))
	}
	return tmpl.Execute(w, data)
}

// getVersion returns the version string from git tags, stripping the leading
// "v" prefix. Falls back to "dev" if git describe fails.
func getVersion() string {
	out, err := exec.Command("git", "describe", "--tags", "--abbrev=0").Output()
	if err != nil {
		return "dev"
	}

	version := strings.TrimSpace(string(out))
	return strings.TrimPrefix(version, "v")
}
