package dremio

import (
	"fmt"
	"net/url"
	"strings"
)

// versionSegment is the Dremio Cloud API version path segment.
const versionSegment = "v0"

// Endpoints holds the URLs for one query lifecycle against a deployment.
type Endpoints struct {
	root string
}

// routeKey is the decision-table key for endpoint resolution.
type routeKey struct {
	deployment       DeploymentType
	hasVersionPrefix bool
}

// routes maps (deployment, base already carries /v0) to the API root.
// Software never receives a /v0 segment.
var routes = map[routeKey]func(base, projectID string) string{
	{Software, false}: func(base, _ string) string { return base },
	{Software, true}:  func(base, _ string) string { return base },
	{Cloud, false}: func(base, projectID string) string {
		return base + "/" + versionSegment + "/projects/" + url.PathEscape(projectID)
	},
	{Cloud, true}: func(base, projectID string) string {
		return base + "/projects/" + url.PathEscape(projectID)
	},
}

// Resolve computes the endpoints for a profile. It performs no I/O.
func Resolve(p Profile) (Endpoints, error) {
	if err := p.validateEndpointFields(); err != nil {
		return Endpoints{}, err
	}

	base := trimBaseURL(p.BaseURL)
	key := routeKey{deployment: p.Type, hasVersionPrefix: hasVersionPrefix(base)}
	return Endpoints{root: routes[key](base, strings.TrimSpace(p.ProjectID))}, nil
}

// hasVersionPrefix reports whether the base URL path already contains a
// /v0 segment. Substrings such as /v01 do not count.
func hasVersionPrefix(base string) bool {
	u, err := url.Parse(base)
	if err != nil {
		return false
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment == versionSegment {
			return true
		}
	}
	return false
}

// Root returns the API root every endpoint is composed from.
func (e Endpoints) Root() string {
	return e.root
}

// Submit returns the URL that accepts new SQL jobs.
func (e Endpoints) Submit() string {
	return e.root + "/sql"
}

// Status returns the job status URL.
func (e Endpoints) Status(jobID string) string {
	return e.root + "/job/" + url.PathEscape(jobID)
}

// Results returns the job results URL.
func (e Endpoints) Results(jobID string) string {
	return e.Status(jobID) + "/results"
}

// ResultsPage returns the results URL for one page of rows.
func (e Endpoints) ResultsPage(jobID string, offset, limit int) string {
	return fmt.Sprintf("%s?offset=%d&limit=%d", e.Results(jobID), offset, limit)
}

// Catalog returns the catalog URL, used to test a connection.
func (e Endpoints) Catalog() string {
	return e.root + "/catalog"
}
