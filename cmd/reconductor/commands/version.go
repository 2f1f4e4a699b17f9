// cmd/reconductor/commands/version.go
package commands

import (
	"io"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/reconductor/reconductor/pkg/version"
)

var versionTemplate = `Version:      {{.Version}}
Commit:       {{.Commit}}
Go version:   {{.GoVersion}}
Built:        {{.BuildDate}}
OS/Arch:      {{.Os}}/{{.Arch}}
`

// NewVersionCommand builds the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of reconductor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(wr io.Writer) error {
	tmpl, err := template.New("").Parse(versionTemplate)
	if err != nil {
		return err
	}

	v := version.Get()
	return tmpl.Execute(wr, struct {
		Version   string
		Commit    string
		GoVersion string
		BuildDate string
		Os        string
		Arch      string
	}{
		Version:   v.Version,
		Commit:    v.Commit,
		GoVersion: runtime.Version(),
		BuildDate: v.BuildDate,
		Os:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	})
}
