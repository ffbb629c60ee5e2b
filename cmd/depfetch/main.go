// depfetch is a reference command-line tool that exercises the full
// resolve -> download/verify -> relocate -> print pipeline against a real
// Maven repository, directly analogous to a Maven-aware dependency fetcher
// but speaking this module's resolver.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pluginforge/libresolve/src/classpath"
	"github.com/pluginforge/libresolve/src/cli"
	"github.com/pluginforge/libresolve/src/coordinate"
	"github.com/pluginforge/libresolve/src/depman"
	"github.com/pluginforge/libresolve/src/relocate"
)

var opts = struct {
	Usage       string
	Verbosity   cli.Verbosity `short:"v" long:"verbosity" default:"warning" description:"Verbosity of output (higher number = more output)"`
	Repository  []string      `short:"r" long:"repository" description:"Location of a Maven repository" default:"https://repo1.maven.org/maven2"`
	LibsDir     string        `short:"d" long:"libs_dir" description:"Directory artifacts are downloaded and cached into" required:"yes"`
	Offline     bool          `short:"o" long:"offline" description:"Only consult the local cache, never contact a remote repository"`
	NumThreads  int           `short:"n" long:"num_threads" description:"Number of concurrent fetches to perform; 0 selects a default based on CPU count"`
	Timeout     time.Duration `long:"timeout" default:"30s" description:"Timeout for a single request to a remote repository"`
	Relocate    []string      `long:"relocate" description:"Package relocation in from:to form, may be given multiple times"`
	Args        struct {
		Artifacts []coordinate.Coordinate `positional-arg-name:"ids" required:"yes" description:"Maven coordinates to fetch (e.g. com.example:widget:1.0)"`
	} `positional-args:"yes" required:"yes"`
}{
	Usage: `
depfetch resolves one or more Maven coordinates against a set of repositories,
downloads and verifies the transitive dependency closure, and prints the
local path of every artifact fetched.

Example usage:
depfetch -d /tmp/libs com.example:widget:1.0
> /tmp/libs/com/example/gadget/2.0/gadget-2.0.jar
> /tmp/libs/com/example/widget/1.0/widget-1.0.jar
`,
}

func parseRelocations(raw []string) []relocate.Relocation {
	relocations := make([]relocate.Relocation, 0, len(raw))
	for _, r := range raw {
		idx := -1
		for i := len(r) - 1; i >= 0; i-- {
			if r[i] == ':' {
				idx = i
				break
			}
		}
		if idx == -1 {
			fmt.Fprintf(os.Stderr, "ignoring malformed --relocate value %q, expected from:to\n", r)
			continue
		}
		relocations = append(relocations, relocate.Relocation{From: r[:idx], To: r[idx+1:]})
	}
	return relocations
}

func main() {
	cli.ParseFlagsOrDie("depfetch", "1.0.0", &opts)
	cli.InitLogging(opts.Verbosity)

	manager, err := depman.New(depman.Config{
		LibsDir:        opts.LibsDir,
		Offline:        opts.Offline,
		WorkerCount:    opts.NumThreads,
		RequestTimeout: opts.Timeout,
		Host:           stdoutAdder{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	if !opts.Offline {
		for _, repo := range opts.Repository {
			manager.AddRepository(repo)
		}
	}

	deps := make([]coordinate.Dependency, len(opts.Args.Artifacts))
	for i, c := range opts.Args.Artifacts {
		deps[i] = coordinate.Dependency{Coordinate: c, Scope: coordinate.ScopeCompile}
	}

	relocations := parseRelocations(opts.Relocate)
	// LoadDependencies prints each artifact's path as it's injected via
	// stdoutAdder below, standing in for a real classloader hook.
	if _, err := manager.LoadDependencies(deps, relocations); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// stdoutAdder is the trivial HostAdder a standalone binary uses when it
// wants injection side effects printed rather than applied to a real JVM
// class loader, which depfetch never embeds.
type stdoutAdder struct{}

func (stdoutAdder) AddURL(path string) error {
	fmt.Println(path)
	return nil
}

var _ classpath.HostAdder = stdoutAdder{}
