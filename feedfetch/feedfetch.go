// Package feedfetch retrieves raw feed payloads so the normalizer can stay a
// pure transformation. Sources are fetched concurrently and fail
// independently: one unreachable feed never blocks the rest of the run.
package feedfetch

import (
	"context"
	"os"
	"path"
	"strings"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/depwatch/depwatch/utils"
)

const (
	defaultConcurrency = 4
	defaultRetry       = 2
)

// Source is one feed to pull: a human-readable label and where to get it.
// Anything go-getter understands works as a URL (https, local file, git::).
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type sourceFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads a YAML source list. Both a bare list and a top-level
// "sources:" key are accepted. Entries without a URL are rejected; entries
// without a name are labeled by the URL's base name.
func LoadSources(appFs afero.Fs, filePath string) ([]Source, error) {
	b, err := afero.ReadFile(appFs, filePath)
	if err != nil {
		return nil, xerrors.Errorf("unable to read source list %s: %w", filePath, err)
	}

	var cfg sourceFile
	if err := yaml.Unmarshal(b, &cfg); err != nil || len(cfg.Sources) == 0 {
		var bare []Source
		if err := yaml.Unmarshal(b, &bare); err != nil {
			return nil, xerrors.Errorf("invalid source list %s: %w", filePath, err)
		}
		cfg.Sources = bare
	}

	for i, src := range cfg.Sources {
		if src.URL == "" {
			return nil, xerrors.Errorf("source %d in %s has no url", i, filePath)
		}
		if src.Name == "" {
			cfg.Sources[i].Name = path.Base(src.URL)
		}
	}
	return cfg.Sources, nil
}

// Payload is one source's fetch outcome. Body and Err are mutually
// exclusive.
type Payload struct {
	Source string
	Body   []byte
	Err    error
}

type option func(f *Fetcher)

func WithConcurrency(n int) option {
	return func(f *Fetcher) { f.concurrency = n }
}

func WithRetry(n int) option {
	return func(f *Fetcher) { f.retry = n }
}

// WithQuiet disables the progress bar.
func WithQuiet(quiet bool) option {
	return func(f *Fetcher) { f.quiet = quiet }
}

type Fetcher struct {
	concurrency int
	retry       int
	quiet       bool
}

func NewFetcher(opts ...option) *Fetcher {
	f := &Fetcher{
		concurrency: defaultConcurrency,
		retry:       defaultRetry,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll pulls every source concurrently and returns one payload per
// source, in source order.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []Payload {
	payloads := make([]Payload, len(sources))
	if len(sources) == 0 {
		return payloads
	}

	type result struct {
		index int
		body  []byte
		err   error
	}
	resChan := make(chan result, len(sources))

	tasks := utils.GenWorkers(f.concurrency, 0)
	go func() {
		for i, src := range sources {
			i, src := i, src
			tasks <- func() {
				body, err := f.fetch(ctx, src)
				resChan <- result{index: i, body: body, err: err}
			}
		}
	}()

	var bar *pb.ProgressBar
	if !f.quiet {
		bar = pb.StartNew(len(sources))
	}
	for range sources {
		res := <-resChan
		payloads[res.index] = Payload{
			Source: sources[res.index].Name,
			Body:   res.body,
			Err:    res.err,
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return payloads
}

func (f *Fetcher) fetch(ctx context.Context, src Source) ([]byte, error) {
	if strings.HasPrefix(src.URL, "http://") || strings.HasPrefix(src.URL, "https://") {
		body, err := utils.FetchURL(src.URL, "", f.retry)
		if err != nil {
			return nil, xerrors.Errorf("failed to fetch %s: %w", src.Name, err)
		}
		return body, nil
	}

	tmpFile, err := utils.DownloadToTempFile(ctx, src.URL)
	if err != nil {
		return nil, xerrors.Errorf("failed to download %s: %w", src.Name, err)
	}
	defer os.Remove(tmpFile)

	body, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", src.Name, err)
	}
	return body, nil
}
