package weaviate

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the subset of the Weaviate schema API used to create and
// migrate the chunk class.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

type schemaAPI struct {
	client *weaviate.Client
}

func (a schemaAPI) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a schemaAPI) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a schemaAPI) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a schemaAPI) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: propText, DataType: []string{"text"}},
		{Name: propOwnerID, DataType: []string{"int"}},
		{Name: propDocumentID, DataType: []string{"int"}},
		{Name: propDocumentTitle, DataType: []string{"text"}},
		{Name: propChunkIndex, DataType: []string{"int"}},
		{Name: propChunkLength, DataType: []string{"int"}},
	}
}

// EnsureSchema creates the chunk class with a cosine vector index, or adds
// any properties an older deployment is missing. Vectors are supplied by the
// caller, so the class has no vectorizer.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:             className,
			Description:       "A chunk of an uploaded document",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		})
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, className, p); err != nil {
			return err
		}
	}
	return nil
}
