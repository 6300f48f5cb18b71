// Package ghsa pulls npm advisories classified as malware from the GitHub
// Security Advisory GraphQL API and exposes them as one more feed.
package ghsa

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	githubql "github.com/shurcooL/githubv4"
	"github.com/shurcooL/graphql"
	"golang.org/x/xerrors"

	"github.com/depwatch/depwatch/types"
	"github.com/depwatch/depwatch/utils"
)

const (
	// SourceName labels GHSA-derived entries in registry source sets.
	SourceName = "ghsa-malware"

	npmEcosystem    = "NPM"
	defaultRetry    = 5
	maxResponseSize = 100
)

var wait = func(i int) time.Duration {
	sleep := math.Pow(float64(i), 2) + float64(utils.RandInt()%10)
	return time.Duration(sleep) * time.Second
}

type GithubClient interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

type PackageInfo struct {
	Name      githubql.String
	Ecosystem githubql.String
}

type SecurityVulnerability struct {
	Package                PackageInfo
	Severity               githubql.String
	VulnerableVersionRange githubql.String
	UpdatedAt              githubql.DateTime
}

type SecurityVulnerabilities struct {
	Nodes    []SecurityVulnerability
	PageInfo struct {
		EndCursor   githubql.String
		HasNextPage githubql.Boolean
	}
}

type GetVulnerabilitiesQuery struct {
	SecurityVulnerabilities SecurityVulnerabilities `graphql:"securityVulnerabilities(ecosystem: $ecosystem, classifications: [MALWARE], first: $total, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC})"`
}

type option func(c *Config)

func WithRetry(retry int) option {
	return func(c *Config) { c.retry = retry }
}

type Config struct {
	client GithubClient
	retry  int
}

func NewConfig(client GithubClient, opts ...option) Config {
	c := Config{
		client: client,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// FetchRegistry downloads every npm malware advisory and builds a partial
// registry from those whose vulnerable range pins an exact version. Range
// forms ("< 2.0.0", ">= 1.0, < 1.2") carry no exact compromised release and
// are skipped; exact-version matching is all the classifier does.
func (c Config) FetchRegistry(ctx context.Context) (types.Registry, error) {
	log.Print("Fetching GitHub Security Advisory malware list")

	vulns, err := c.fetchSecurityVulnerabilities(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch github security advisories: %w", err)
	}

	reg := types.Registry{}
	for _, vuln := range vulns {
		name := strings.TrimSpace(string(vuln.Package.Name))
		if name == "" {
			continue
		}
		version, ok := exactVersion(string(vuln.VulnerableVersionRange))
		if !ok {
			continue
		}
		severity := types.ParseSeverity(string(vuln.Severity))
		if severity == types.SeverityUnknown {
			severity = types.SeverityCritical
		}
		reg.Add(types.ParseIdentifier(name), version, SourceName, severity, vuln.UpdatedAt.Time)
	}
	return reg, nil
}

func (c Config) fetchSecurityVulnerabilities(ctx context.Context) ([]SecurityVulnerability, error) {
	var query GetVulnerabilitiesQuery
	var vulns []SecurityVulnerability
	variables := map[string]interface{}{
		"ecosystem": githubql.SecurityAdvisoryEcosystem(npmEcosystem),
		"total":     graphql.Int(maxResponseSize),
		"cursor":    (*githubql.String)(nil),
	}
	for {
		var err error
		for i := 0; i <= c.retry; i++ {
			if i > 0 {
				sleep := wait(i)
				log.Printf("retry after %s", sleep)
				time.Sleep(sleep)
			}

			err = c.client.Query(ctx, &query, variables)
			if err == nil || len(query.SecurityVulnerabilities.Nodes) > 0 {
				break
			}
		}
		// the API sometimes errors while still returning usable nodes
		if err != nil && len(query.SecurityVulnerabilities.Nodes) == 0 {
			return nil, xerrors.Errorf("graphql api error: %w", err)
		}

		vulns = append(vulns, query.SecurityVulnerabilities.Nodes...)
		if !query.SecurityVulnerabilities.PageInfo.HasNextPage {
			break
		}

		variables["cursor"] = githubql.NewString(query.SecurityVulnerabilities.PageInfo.EndCursor)
	}
	return vulns, nil
}

// exactVersion extracts the version from an "= x.y.z" vulnerable range.
func exactVersion(vulnerableRange string) (string, bool) {
	r := strings.TrimSpace(vulnerableRange)
	if !strings.HasPrefix(r, "=") {
		return "", false
	}
	version := strings.TrimSpace(strings.TrimPrefix(r, "="))
	if version == "" || strings.ContainsAny(version, "<>, ") {
		return "", false
	}
	return version, true
}
