// Package sources assembles content-source connectors by type.
package sources

import (
	"context"
	"fmt"

	"github.com/Gubeli/substans-kb/internal/adapters/sources/directory"
	"github.com/Gubeli/substans-kb/internal/adapters/sources/feed"
	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.SourceFactory = (*Factory)(nil)

// Factory builds connectors for the registered source types.
type Factory struct{}

// NewFactory creates a connector factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates the connector matching the source type.
func (f *Factory) Create(_ context.Context, source domain.Source) (driven.ContentSource, error) {
	switch source.Type {
	case "directory":
		return directory.New(source.ID, source.Config)
	case "feed":
		return feed.New(source.ID, source.Config)
	default:
		return nil, fmt.Errorf("%w: source type %q", domain.ErrUnsupportedType, source.Type)
	}
}
