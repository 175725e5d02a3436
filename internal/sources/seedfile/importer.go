package seedfile

import (
	"fmt"

	"github.com/shelf-sh/shelf/internal/logger"
)

// Submit is the add operation entries are pushed through. Going through
// the normal submit path means imported entries reconcile with their
// own feed echoes like any other add.
type Submit func(title, url string) error

// Importer pushes seed file entries into the store, one by one.
type Importer struct {
	loader *Loader
	submit Submit
	logger logger.Logger
}

// NewImporter creates a new seed importer.
func NewImporter(filePath string, submit Submit, log logger.Logger) *Importer {
	return &Importer{
		loader: NewLoader(filePath),
		submit: submit,
		logger: log,
	}
}

// Run loads the seed file and submits every entry. Individual failures
// are logged and skipped; the import keeps going.
func (i *Importer) Run() error {
	config, err := i.loader.Load()
	if err != nil {
		return err
	}

	if len(config.Bookmarks) == 0 {
		return fmt.Errorf("no bookmarks found in seed file")
	}

	imported := 0
	for _, entry := range config.Bookmarks {
		if err := i.submit(entry.Title, entry.URL); err != nil {
			i.logger.Warn("skipping seed entry",
				logger.String("title", entry.Title),
				logger.Error(err))
			continue
		}
		imported++
	}

	i.logger.Info("seed import finished",
		logger.Int("imported", imported),
		logger.Int("total", len(config.Bookmarks)))
	return nil
}
