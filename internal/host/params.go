package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattjoyce/unitd/internal/log"
	"github.com/mattjoyce/unitd/internal/protocol"
)

// Terminal is the terminal state passed to every launched unit.
type Terminal struct {
	Prefix  string
	Cols    int
	Rows    int
	AltHTTP bool
}

var argKey = regexp.MustCompile(`(?i)^ARG\d+$`)

// reserved keys a unit may not set through its environment.
func reserved(key string) bool {
	return key == "SRC" || key == "DATA" || argKey.MatchString(key)
}

// BuildParams turns a spawn request's environment into launch parameters
// and adds the terminal parameters every unit expects. Entries without '='
// are skipped.
func BuildParams(envs []string, cwd string, term Terminal) map[string]string {
	params := make(map[string]string, len(envs)+12)
	for _, env := range envs {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			log.WithComponent("host").Warn("skipping malformed env entry", "env", env)
			continue
		}
		if reserved(key) {
			continue
		}
		params[key] = value
	}

	params["PS_TTY_PREFIX"] = term.Prefix
	params["PS_TTY_RESIZE"] = protocol.ResizeKey
	params["PS_TTY_COLS"] = strconv.Itoa(term.Cols)
	params["PS_TTY_ROWS"] = strconv.Itoa(term.Rows)
	params["PS_STDIN"] = "/dev/tty"
	params["PS_STDOUT"] = "/dev/tty"
	params["PS_STDERR"] = "/dev/tty"
	params["PS_VERBOSITY"] = "2"
	params["PS_EXIT_MESSAGE"] = protocol.ExitPrefix
	params["TERM"] = "xterm-256color"
	params["PWD"] = cwd
	if term.AltHTTP {
		params["NACL_ALT_HTTP"] = "1"
	}
	return params
}

// ArgParams returns argv as arg0..argN parameters.
func ArgParams(argv []string) map[string]string {
	params := make(map[string]string, len(argv))
	for i, a := range argv {
		params[fmt.Sprintf("arg%d", i)] = a
	}
	return params
}
