// Package envy automatically exposes environment
// variables for all of your flags.
package envy

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Parse takes a prefix string and exposes environment variables
// for all flags in the default FlagSet (flag.CommandLine) in the
// form of PREFIX_FLAGNAME.
func Parse(p string) error {
	return ParseFlagSet(p, flag.CommandLine)
}

// EnvVar returns the environment variable name for flag name under
// prefix p: "cache-dir" with prefix "APP" becomes APP_CACHE_DIR.
func EnvVar(p, name string) string {
	v := fmt.Sprintf("%s_%s", p, strings.ToUpper(name))
	return strings.ReplaceAll(v, "-", "_")
}

// ParseFlagSet exposes each flag in fs as an upper case environment
// variable prefixed with p.  Any flag that was not explicitly set by a
// user is updated to the environment variable, if set and non-empty.
// The first value that the flag rejects is returned as an error.
func ParseFlagSet(p string, fs *flag.FlagSet) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		envVar := EnvVar(p, f.Name)

		if val := os.Getenv(envVar); val != "" && !set[f.Name] {
			if serr := fs.Set(f.Name, val); serr != nil && err == nil {
				err = fmt.Errorf("envy: invalid value %q for %s: %w", val, envVar, serr)
			}
		}

		f.Usage = fmt.Sprintf("%s [%s]", f.Usage, envVar)
	})
	return err
}
