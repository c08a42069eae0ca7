package weaviate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeSchemaClient struct {
	existing *models.Class
	created  *models.Class
	added    []*models.Property
}

func (f *fakeSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return f.existing != nil, nil
}

func (f *fakeSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	f.created = class
	return nil
}

func (f *fakeSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return f.existing, nil
}

func (f *fakeSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	f.added = append(f.added, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &fakeSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client, "DocumentChunks"))
	require.NotNil(t, client.created)

	assert.Equal(t, "DocumentChunks", client.created.Class)
	assert.Equal(t, "none", client.created.Vectorizer)

	types := make(map[string]string)
	for _, p := range client.created.Properties {
		types[p.Name] = p.DataType[0]
	}
	assert.Equal(t, "int", types["ownerId"])
	assert.Equal(t, "int", types["documentId"])
	assert.Equal(t, "text", types["text"])
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &fakeSchemaClient{existing: &models.Class{
		Class: "DocumentChunks",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "ownerId", DataType: []string{"int"}},
			{Name: "documentId", DataType: []string{"int"}},
		},
	}}
	require.NoError(t, EnsureSchema(context.Background(), client, "DocumentChunks"))

	assert.Nil(t, client.created)
	var names []string
	for _, p := range client.added {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"documentTitle", "chunkIndex", "chunkLength"}, names)
}

func TestSchemaAPI_ClassExists(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/schema/DocumentChunks", r.URL.Path)
		json.NewEncoder(w).Encode(&models.Class{Class: "DocumentChunks"})
	}))
	defer ts.Close()

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)

	exists, err := schemaAPI{client: client}.ClassExists(context.Background(), "DocumentChunks")
	assert.NoError(t, err)
	assert.True(t, exists)
}
