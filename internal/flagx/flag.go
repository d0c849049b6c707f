// Package flagx holds small helpers for parsing a subset of os.Args so that
// independent loaders (JSON file lookup, CLI flags) do not trip over each
// other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps only the flags named in allowed, together with their
// values. Both "-k value" and "-k=value" are recognised; a value is only
// consumed when it does not itself start with "-".
func FilterArgs(args []string, allowed []string) []string {
	known := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		known[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if known[name] {
				out = append(out, arg)
			}
			continue
		}

		if !known[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// ConfigFile returns the JSON config path given with -c or -config, or "".
func ConfigFile(args []string) string {
	var path string
	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))
	return path
}
