// Package flagx holds helpers for sharing one command line between several
// independent flag sets (config file lookup, server flags, subcommands).
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their
// values, preserving order. Both "-f value" and "-f=value" forms are kept;
// a token that starts with "-" is never consumed as a value.
//
// This lets every flag set parse the same os.Args without failing on flags
// that belong to someone else.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFile extracts the JSON config path given with -c or -config.
// The last occurrence wins; an empty string means no file was requested.
func ConfigFile(args []string) string {
	var config string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return config
}

// Subcommand returns the first positional argument that is not a flag value,
// or fallback when there is none. Flags listed in valued are known to take
// a separate value argument, so that value is skipped.
func Subcommand(args []string, valued []string, fallback string) string {
	skip := make(map[string]struct{}, len(valued))
	for _, f := range valued {
		skip[f] = struct{}{}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
		if _, ok := skip[arg]; ok && !strings.Contains(arg, "=") {
			i++
		}
	}
	return fallback
}
