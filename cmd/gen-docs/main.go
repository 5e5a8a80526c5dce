package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stigoleg/middleclick/internal/cli"
)

// This small tool writes shell completions and a man page for the command tree.

const (
	appName        = "middleclick"
	appDescription = "Turn a multi-finger touchpad click or tap into a middle click."
)

func main() {
	root := cli.NewRootCommand("docs")

	if err := writeCompletions(root); err != nil {
		panic(err)
	}
	if err := writeMan(root); err != nil {
		panic(err)
	}
}

func writeCompletions(root *cobra.Command) error {
	base := filepath.Join("docs", "completions")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return err
	}
	if err := root.GenBashCompletionFileV2(filepath.Join(base, appName+".bash"), true); err != nil {
		return err
	}
	if err := root.GenZshCompletionFile(filepath.Join(base, "_"+appName)); err != nil {
		return err
	}
	return root.GenFishCompletionFile(filepath.Join(base, appName+".fish"), true)
}

func flagNames(f *pflag.Flag) string {
	names := "\\-\\-" + f.Name
	if f.Shorthand != "" {
		names = "\\-" + f.Shorthand + ", " + names
	}
	if t := f.Value.Type(); t != "bool" {
		names += " <" + t + ">"
	}
	return names
}

func escapeRoff(s string) string {
	return strings.ReplaceAll(s, "-", "\\-")
}

func writeMan(root *cobra.Command) error {
	if err := os.MkdirAll("man", 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(".TH \"" + strings.ToUpper(appName) + "\" \"1\" \"\" \"" + appName + "\" \"User Commands\"\n")
	b.WriteString(".SH NAME\n" + appName + " \\- " + appDescription + "\n")
	b.WriteString(".SH SYNOPSIS\n.B " + appName + "\n[options] [command]\n")
	b.WriteString(".SH DESCRIPTION\n" + escapeRoff(root.Long) + "\n")

	b.WriteString(".SH OPTIONS\n")
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		desc := f.Usage
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" {
			desc += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		b.WriteString(".TP\n\\fB" + flagNames(f) + "\\fR\n" + escapeRoff(desc) + "\n")
	})

	b.WriteString(".SH COMMANDS\n")
	var walk func(prefix string, cmd *cobra.Command)
	walk = func(prefix string, cmd *cobra.Command) {
		for _, sub := range cmd.Commands() {
			if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
				continue
			}
			use := strings.TrimSpace(prefix + " " + sub.Use)
			if sub.Runnable() {
				b.WriteString(".TP\n\\fB" + escapeRoff(use) + "\\fR\n" + escapeRoff(sub.Short) + "\n")
			}
			walk(prefix+" "+sub.Name(), sub)
		}
	}
	walk("", root)

	b.WriteString(".SH FILES\n")
	b.WriteString(".TP\n\\fI~/.config/middleclick/settings.ini\\fR\nSettings, reloaded on SIGHUP.\n")
	b.WriteString(".TP\n\\fI$XDG_RUNTIME_DIR/middleclick.pid\\fR\nPid of the detached daemon.\n")
	b.WriteString(".SH EXAMPLES\n")
	b.WriteString(".TP\n\\fB" + appName + "\\fR\nStart the status interface.\n")
	b.WriteString(".TP\n\\fB" + appName + " \\-\\-daemon \\-\\-fingers 3\\fR\nRun in the background with a three finger gesture.\n")
	b.WriteString(".TP\n\\fB" + appName + " ignore add org.gimp.GIMP\\fR\nNever rewrite clicks in GIMP.\n")
	b.WriteString(".SH SEE ALSO\nProject homepage: https://github.com/stigoleg/middleclick\n")
	return os.WriteFile(filepath.Join("man", appName+".1"), []byte(b.String()), 0o644)
}
