package mddb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fellanH/context-vault/pkg/mddb/frontmatter"
)

// parseIndexable parses a markdown file's bytes into an [IndexableDocument],
// validating that the embedded id (and, when expectedID is non-empty, that it
// matches) and the path are consistent with [Config.RelPathFromID].
//
// relPath and data are borrowed; the returned IndexableDocument's byte fields
// point into data (and relPath) and must not outlive the caller's use of them.
func (mddb *MDDB[T]) parseIndexable(relPath []byte, data []byte, mtimeNS int64, sizeBytes int64, expectedID string) (IndexableDocument, error) {
	fm, tail, err := frontmatter.ParseBytes(data, mddb.cfg.ParseOptions...)
	if err != nil {
		return IndexableDocument{}, fmt.Errorf("parse frontmatter: %w", err)
	}

	id, ok := fm.GetBytes(frontmatterKeyID)
	if !ok || len(id) == 0 {
		return IndexableDocument{}, errEmptyID
	}

	if expectedID != "" && string(id) != expectedID {
		return IndexableDocument{}, fmt.Errorf("id mismatch: expected %s, got %s", expectedID, id)
	}

	path, shortID, err := mddb.deriveAndValidate(string(id), relPath)
	if err != nil {
		return IndexableDocument{}, fmt.Errorf("%w", err)
	}

	title, _ := fm.GetBytes(frontmatterKeyTitle)
	if len(title) == 0 {
		return IndexableDocument{}, fmt.Errorf("%w (doc_id=%s)", ErrEmptyTitle, id)
	}

	body := trimTrailingNewlines(tail)

	return IndexableDocument{
		ID:          id,
		ShortID:     []byte(shortID),
		RelPath:     []byte(path),
		MtimeNS:     mtimeNS,
		SizeBytes:   sizeBytes,
		Title:       title,
		Body:        body,
		Frontmatter: fm,
	}, nil
}

// parseDocument parses a markdown file's bytes into a user document via
// [Config.DocumentFrom]. Unlike [MDDB.parseIndexable], the result owns no
// borrowed bytes beyond the call: DocumentFrom is responsible for copying
// whatever it retains.
func (mddb *MDDB[T]) parseDocument(relPath string, data []byte, mtimeNS int64, sizeBytes int64, expectedID string) (*T, error) {
	indexable, err := mddb.parseIndexable([]byte(relPath), data, mtimeNS, sizeBytes, expectedID)
	if err != nil {
		return nil, err
	}

	if mddb.cfg.DocumentFrom == nil {
		return nil, errors.New("Config.DocumentFrom is nil")
	}

	doc, err := mddb.cfg.DocumentFrom(indexable)
	if err != nil {
		return nil, fmt.Errorf("DocumentFrom: %w", err)
	}

	if doc == nil {
		return nil, errors.New("DocumentFrom returned nil document")
	}

	return doc, nil
}

func trimTrailingNewlines(b []byte) []byte {
	return []byte(strings.TrimRight(string(b), "\r\n"))
}
