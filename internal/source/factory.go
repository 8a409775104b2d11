package source

import (
	"context"
	"fmt"
	"sync"

	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
	"tcm-go/internal/s3client"
)

// Opener resolves a locator to a Source:
//   - s3://bucket/prefix is read from S3
//   - a path ending in .zip is read as an archive
//   - anything else is a local directory
type Opener struct {
	layout Layout
	ignore *IgnoreMatcher
	s3cfg  config.S3Config

	mu  sync.Mutex
	api ObjectAPI
}

// NewOpener creates an Opener from the layout and S3 sections of the config.
func NewOpener(layout config.LayoutConfig, s3cfg config.S3Config) *Opener {
	return &Opener{
		layout: LayoutFromConfig(layout),
		ignore: NewIgnoreMatcher(layout.Ignore),
		s3cfg:  s3cfg,
	}
}

// WithObjectAPI sets the client used for s3:// locators instead of building
// one from config.
func (o *Opener) WithObjectAPI(api ObjectAPI) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.api = api
	return o
}

func (o *Opener) Open(ctx context.Context, locator string) (catalog.Source, error) {
	var (
		src catalog.Source
		err error
	)
	switch {
	case locator == "":
		return nil, fmt.Errorf("source locator is empty")
	case isS3Locator(locator):
		api, apiErr := o.objectAPI(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		src, err = NewS3Source(api, locator, o.layout, o.ignore)
	case isArchive(locator):
		src, err = NewArchiveSource(locator, o.layout, o.ignore)
	default:
		src, err = NewDirectorySource(locator, o.layout, o.ignore)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (o *Opener) objectAPI(ctx context.Context) (ObjectAPI, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.api != nil {
		return o.api, nil
	}
	client, err := s3client.New(ctx, o.s3cfg)
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	o.api = client
	return o.api, nil
}

var _ catalog.SourceOpener = (*Opener)(nil)
