package api

import (
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/postcraft-hq/postcraft/storage/memory"
)

// apiDocument holds the parts of openapi.yaml the route checks read.
type apiDocument struct {
	Paths map[string]map[string]struct {
		Responses map[string]any `yaml:"responses"`
	} `yaml:"paths"`
}

// docRoutes are served next to the API but are not part of it.
var docRoutes = []string{"/openapi.yaml", "/docs", "/redoc"}

func loadAPIDocument(t *testing.T) apiDocument {
	t.Helper()
	var doc apiDocument
	require.NoError(t, yaml.Unmarshal(openapiSpec, &doc), "openapi.yaml must parse")
	return doc
}

// documentedOperations returns "METHOD /path" for every operation in the
// document, sorted.
func documentedOperations(doc apiDocument) []string {
	var ops []string
	for path, methods := range doc.Paths {
		for method := range methods {
			ops = append(ops, strings.ToUpper(method)+" "+path)
		}
	}
	slices.Sort(ops)
	return ops
}

// servedOperations returns "METHOD /path" for every route the router
// registers, sorted, leaving out the documentation routes.
func servedOperations(t *testing.T) []string {
	t.Helper()
	a := New(memory.NewRepository(), nil)
	t.Cleanup(a.Close)

	var ops []string
	err := chi.Walk(a.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(strings.TrimSuffix(route, "*"), "/")
		if slices.Contains(docRoutes, route) {
			return nil
		}
		ops = append(ops, method+" "+route)
		return nil
	})
	require.NoError(t, err)
	slices.Sort(ops)
	return slices.Compact(ops)
}

func TestOpenAPI_MatchesRouter(t *testing.T) {
	documented := documentedOperations(loadAPIDocument(t))
	served := servedOperations(t)

	require.NotEmpty(t, served)
	assert.Equal(t, documented, served,
		"openapi.yaml and Router() disagree; document new routes and drop removed ones")
}

func TestOpenAPI_DocumentsGuardResponses(t *testing.T) {
	doc := loadAPIDocument(t)
	for path, methods := range doc.Paths {
		for method, op := range methods {
			name := strings.ToUpper(method) + " " + path
			assert.Contains(t, op.Responses, "429", "%s is rate limited", name)
			if strings.EqualFold(method, http.MethodPost) {
				assert.Contains(t, op.Responses, "403", "%s is CSRF protected", name)
			}
		}
	}
}
