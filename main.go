package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	githubql "github.com/shurcooL/githubv4"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"

	"github.com/depwatch/depwatch/classify"
	"github.com/depwatch/depwatch/feed"
	"github.com/depwatch/depwatch/feedfetch"
	"github.com/depwatch/depwatch/ghsa"
	"github.com/depwatch/depwatch/nodetree"
	"github.com/depwatch/depwatch/registry"
	"github.com/depwatch/depwatch/reporter"
	"github.com/depwatch/depwatch/types"
	"github.com/depwatch/depwatch/utils"
)

// feeds used when no source list is given
var defaultSources = []feedfetch.Source{
	{
		Name: "shai-hulud-detect",
		URL:  "https://raw.githubusercontent.com/Cobenian/shai-hulud-detect/main/compromised-packages.txt",
	},
	{
		Name: "datadog-malicious-packages",
		URL:  "https://raw.githubusercontent.com/DataDog/malicious-software-packages-dataset/main/samples/npm/manifest.json",
	},
}

var (
	dir         = flag.String("dir", ".", "directory containing the node_modules tree to audit")
	feeds       = flag.String("feeds", "", "YAML feed source list (default: built-in sources, $DEPWATCH_FEEDS)")
	useGhsa     = flag.Bool("ghsa", false, "also pull npm malware advisories from GitHub (needs GITHUB_TOKEN)")
	concurrency = flag.Int("concurrency", 4, "concurrent feed fetches")
	retry       = flag.Int("retry", 2, "fetch retries per feed")
	noColor     = flag.Bool("no-color", false, "disable colored output")
	quiet       = flag.Bool("quiet", false, "disable the fetch progress bar")
)

func main() {
	code, err := run()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

func run() (int, error) {
	flag.Parse()
	ctx := context.Background()
	color.NoColor = color.NoColor || *noColor

	sources := defaultSources
	if path := utils.LookupEnv("DEPWATCH_FEEDS", *feeds); path != "" {
		var err error
		if sources, err = feedfetch.LoadSources(afero.NewOsFs(), path); err != nil {
			return 1, xerrors.Errorf("failed to load feed sources: %w", err)
		}
	}

	fetcher := feedfetch.NewFetcher(
		feedfetch.WithConcurrency(*concurrency),
		feedfetch.WithRetry(*retry),
		feedfetch.WithQuiet(*quiet),
	)
	payloads := fetcher.FetchAll(ctx, sources)

	var partials []types.Registry
	var failed int
	for _, payload := range payloads {
		if payload.Err != nil {
			log.Printf("WARN: feed %s failed: %v", payload.Source, payload.Err)
			failed++
			continue
		}
		partial, err := feed.NewNormalizer(payload.Source).Normalize(payload.Body)
		if err != nil {
			log.Printf("WARN: feed %s unusable: %v", payload.Source, err)
			failed++
			continue
		}
		log.Printf("feed %s: %d known-bad packages", payload.Source, len(partial))
		partials = append(partials, partial)
	}

	if *useGhsa {
		partial, err := fetchGhsa(ctx)
		if err != nil {
			log.Printf("WARN: GitHub advisory source failed: %v", err)
			failed++
		} else {
			log.Printf("feed %s: %d known-bad packages", ghsa.SourceName, len(partial))
			partials = append(partials, partial)
		}
	}

	// an empty registry would make every tree look clean
	if len(partials) == 0 {
		return 1, xerrors.Errorf("all %d feeds failed, refusing to report a clean scan", failed)
	}

	unified := registry.Merge(partials...)
	log.Printf("unified registry holds %d package identifiers", len(unified))

	installed, err := nodetree.NewWalker().Walk(*dir)
	if err != nil {
		return 1, xerrors.Errorf("failed to enumerate %s: %w", *dir, err)
	}
	if len(installed) == 0 {
		log.Printf("WARN: no installed packages found under %s", *dir)
	}

	result := classify.Classify(unified, installed)
	reporter.New(os.Stdout).Report(result, len(unified))

	if len(result.Compromised) > 0 {
		return 2, nil
	}
	return 0, nil
}

func fetchGhsa(ctx context.Context) (types.Registry, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, xerrors.New("GITHUB_TOKEN is not set")
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	config := ghsa.NewConfig(githubql.NewClient(oauth2.NewClient(ctx, src)))

	reg, err := config.FetchRegistry(ctx)
	if err != nil {
		return nil, xerrors.Errorf("ghsa fetch error: %w", err)
	}
	return reg, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: depwatch [flags]\n\nAudits a node_modules tree against published compromised-package feeds.\n\n")
		flag.PrintDefaults()
	}
}
