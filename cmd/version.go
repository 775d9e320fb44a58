package cmd

import (
	"os"

	"s5-keeper/cmd/root"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var SoftwareVer = ""
var BuildTime = ""
var BuildTag = ""
var BuildCommitId = ""

func PrintVersions() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Version", SoftwareVer},
		{"Build Time", BuildTime},
		{"Build Tag", BuildTag},
		{"Build Commit ID", BuildCommitId},
	})
	t.Render()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `The 'version' command shows version details including git commit and build time`,

	Run: func(cmd *cobra.Command, args []string) {
		PrintVersions()
	},
}

func init() {
	if SoftwareVer != "" {
		root.Version = SoftwareVer
	}
	root.RootCmd.AddCommand(versionCmd)

	versionCmd.Example = `  s5 version`
}
