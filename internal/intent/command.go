package intent

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// commandFlags is the subset of kubectl flags a read-only intent can carry.
// Any other flag is an error.
func commandFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("kubectl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringP("namespace", "n", "", "")
	fs.BoolP("all-namespaces", "A", false, "")
	fs.Int("tail", 0, "")
	fs.StringP("container", "c", "", "")
	fs.BoolP("previous", "p", false, "")
	fs.StringP("selector", "l", "", "")
	// output formatting is the executor's business
	fs.StringP("output", "o", "", "")
	return fs
}

// ParseCommand turns a kubectl-style command line, as language models like
// to emit it, into an Intent. It never runs anything; the result still has
// to pass the allow-list. Shell syntax is refused outright.
func ParseCommand(line string) (Intent, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Intent{}, errors.New("empty command")
	}
	if strings.ContainsAny(line, "|;&><`$()") {
		return Intent{}, fmt.Errorf("shell syntax is not allowed in %q", line)
	}

	fields := strings.Fields(line)
	if fields[0] == "kubectl" {
		fields = fields[1:]
	}

	fs := commandFlags()
	if err := fs.Parse(fields); err != nil {
		return Intent{}, fmt.Errorf("invalid command %q: %w", line, err)
	}
	args := fs.Args()
	if len(args) == 0 {
		return Intent{}, errors.New("missing action")
	}

	in := Intent{Action: Action(strings.ToLower(args[0]))}
	positional := args[1:]

	in.Namespace, _ = fs.GetString("namespace")
	in.AllNamespaces, _ = fs.GetBool("all-namespaces")
	if fs.Changed("tail") {
		n, _ := fs.GetInt("tail")
		in.setExtra("tail", n)
	}
	if fs.Changed("container") {
		v, _ := fs.GetString("container")
		in.setExtra("container", v)
	}
	if fs.Changed("previous") {
		v, _ := fs.GetBool("previous")
		in.setExtra("previous", v)
	}
	if fs.Changed("selector") {
		v, _ := fs.GetString("selector")
		in.setExtra("selector", v)
	}

	if in.Action == ActionLogs {
		// kubectl logs <pod> [-c container]
		in.Resource = ResourcePod
		if len(positional) > 0 {
			kind, name, ok := strings.Cut(positional[0], "/")
			if ok {
				in.Resource = Resource(kind)
				in.Name = name
			} else {
				in.Name = positional[0]
			}
		}
		return in, nil
	}

	if len(positional) == 0 {
		return Intent{}, fmt.Errorf("missing resource for %s", in.Action)
	}
	kind, name, ok := strings.Cut(positional[0], "/")
	in.Resource = Resource(strings.ToLower(kind))
	if ok {
		in.Name = name
	} else if len(positional) > 1 {
		in.Name = positional[1]
	}
	return in, nil
}

// ParseCommandLenient is ParseCommand for untrusted planner output: a line
// that does not parse becomes an intent carrying the raw text, which the
// allow-list rejects with a structured error instead of failing the cycle.
func ParseCommandLenient(line string) Intent {
	in, err := ParseCommand(line)
	if err == nil {
		return in
	}
	return Intent{
		Action: Action("unparsed"),
		Extras: map[string]any{
			"raw":         line,
			"parse_error": err.Error(),
		},
	}
}

func (in *Intent) setExtra(key string, v any) {
	if in.Extras == nil {
		in.Extras = make(map[string]any)
	}
	in.Extras[key] = v
}
