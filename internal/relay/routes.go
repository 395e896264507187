package relay

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Upstream selects which GitHub base URL a route targets.
type Upstream int

const (
	// API is the REST API (api.github.com).
	API Upstream = iota
	// OAuth is the OAuth web flow host (github.com).
	OAuth
)

// issueListPageSize is the fixed page size for /getIssueList.
const issueListPageSize = 10

// Route declares how one inbound path maps onto an upstream call.
type Route struct {
	// Name is the inbound path, e.g. "/getDetail".
	Name     string
	Upstream Upstream
	Method   string
	// Path is the upstream path template; {name} is replaced by the
	// path-escaped parameter of the same name.
	Path     string
	Required []string
	Optional []string
	Query    func(url.Values) url.Values
	Body     func(url.Values) any
	// Mutates marks routes that change upstream state. They are also
	// served on POST.
	Mutates bool
	// RequireAuth rejects calls that carry no Authorization header.
	RequireAuth bool
	// Credentials attaches the configured OAuth client id and secret.
	Credentials bool
}

type labelsPayload struct {
	Labels []string `json:"labels"`
}

var routes = []Route{
	{
		Name:        "/getAccessToken",
		Upstream:    OAuth,
		Method:      http.MethodPost,
		Path:        "/login/oauth/access_token",
		Required:    []string{"code"},
		Query:       pick("code"),
		Credentials: true,
	},
	{
		Name:        "/getUserData",
		Method:      http.MethodGet,
		Path:        "/user",
		RequireAuth: true,
	},
	{
		Name:     "/getIssueList",
		Method:   http.MethodGet,
		Path:     "/search/issues",
		Required: []string{"q"},
		Optional: []string{"page"},
		Query:    issueListQuery,
	},
	{
		Name:     "/getSearchList",
		Method:   http.MethodGet,
		Path:     "/search/issues",
		Required: []string{"q"},
		Optional: []string{"sort"},
		Query:    searchListQuery,
	},
	{
		Name:     "/getDetail",
		Method:   http.MethodGet,
		Path:     "/repos/{username}/{repo}/issues/{number}",
		Required: []string{"username", "repo", "number"},
	},
	{
		Name:     "/createIssue",
		Method:   http.MethodPost,
		Path:     "/repos/{username}/{repo}/issues",
		Required: []string{"username", "repo", "title"},
		Optional: []string{"body"},
		Body:     issueBody,
		Mutates:  true,
	},
	{
		Name:     "/editIssue",
		Method:   http.MethodPatch,
		Path:     "/repos/{username}/{repo}/issues/{number}",
		Required: []string{"username", "repo", "number"},
		Optional: []string{"title", "body"},
		Body:     issueBody,
		Mutates:  true,
	},
	{
		// Closes the issue; GitHub has no issue deletion over REST.
		Name:     "/deleteIssue",
		Method:   http.MethodPost,
		Path:     "/repos/{username}/{repo}/issues/{number}",
		Required: []string{"username", "repo", "number"},
		Body:     closeIssueBody,
		Mutates:  true,
	},
	{
		Name:     "/createLabels",
		Method:   http.MethodPost,
		Path:     "/repos/{username}/{repo}/labels",
		Required: []string{"username", "repo", "label_name"},
		Body:     createLabelBody,
		Mutates:  true,
	},
	{
		// The label is always "open"; callers cannot choose it.
		Name:     "/addLabelsToIssue",
		Method:   http.MethodPost,
		Path:     "/repos/{username}/{repo}/issues/{number}/labels",
		Required: []string{"username", "repo", "number"},
		Body:     openLabelBody,
		Mutates:  true,
	},
	{
		// PUT replaces every label on the issue.
		Name:     "/setLabelsToIssue",
		Method:   http.MethodPut,
		Path:     "/repos/{username}/{repo}/issues/{number}/labels",
		Required: []string{"username", "repo", "number", "label"},
		Body:     setLabelsBody,
		Mutates:  true,
	},
	{
		Name:        "/getRepoList",
		Method:      http.MethodGet,
		Path:        "/user/repos",
		RequireAuth: true,
	},
}

// Routes returns a copy of the routing table.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Lookup returns the route registered under name.
func Lookup(name string) (*Route, bool) {
	for i := range routes {
		if routes[i].Name == name {
			r := routes[i]
			return &r, true
		}
	}
	return nil, false
}

// pick copies the named parameters into a fresh query.
func pick(names ...string) func(url.Values) url.Values {
	return func(p url.Values) url.Values {
		q := make(url.Values)
		for _, n := range names {
			if p.Has(n) {
				q.Set(n, p.Get(n))
			}
		}
		return q
	}
}

func issueListQuery(p url.Values) url.Values {
	q := pick("q", "page")(p)
	q.Set("per_page", strconv.Itoa(issueListPageSize))
	return q
}

// searchListQuery sorts by creation date; only the literal "true" means descending.
func searchListQuery(p url.Values) url.Values {
	order := "asc"
	if p.Get("sort") == "true" {
		order = "desc"
	}
	q := pick("q")(p)
	q.Set("sort", "created")
	q.Set("order", order)
	return q
}

// issueBody sends title and body only when the caller supplied them.
func issueBody(p url.Values) any {
	out := make(map[string]string, 2)
	for _, k := range []string{"title", "body"} {
		if p.Has(k) {
			out[k] = p.Get(k)
		}
	}
	return out
}

func closeIssueBody(url.Values) any {
	return map[string]string{"state": "closed"}
}

func createLabelBody(p url.Values) any {
	return map[string]string{"name": p.Get("label_name")}
}

func openLabelBody(url.Values) any {
	return labelsPayload{Labels: []string{"open"}}
}

func setLabelsBody(p url.Values) any {
	return labelsPayload{Labels: []string{strings.ToLower(p.Get("label"))}}
}
