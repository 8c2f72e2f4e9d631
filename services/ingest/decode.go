package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/r74tech/raven-front/db/searchdb"
)

var errInvalidDocument = errors.New("invalid document")

type rawDocument struct {
	Fullname    string          `json:"fullname"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Source      string          `json:"source"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   json.RawMessage `json:"created_at"`
	URL         string          `json:"url"`
}

// parseCreatedAt accepts RFC 3339 strings and unix seconds.
func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339, text)
	}

	seconds, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported created_at %s", raw)
	}
	return time.Unix(seconds, 0).UTC(), nil
}

func (r rawDocument) document() (searchdb.Document, error) {
	createdAt, err := parseCreatedAt(r.CreatedAt)
	if err != nil {
		return searchdb.Document{}, fmt.Errorf("%w %s: %w", errInvalidDocument, r.Fullname, err)
	}
	return searchdb.Document{
		Fullname:    r.Fullname,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Source:      r.Source,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   createdAt,
		URL:         r.URL,
	}, nil
}

// documentDecoder reads either one JSON array of documents or a stream of documents
// (JSON lines).
type documentDecoder struct {
	decoder *json.Decoder
	inArray bool
}

func newDocumentDecoder(r io.Reader) (*documentDecoder, error) {
	buffered := bufio.NewReader(r)
	first, err := peekNonSpace(buffered)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	decoder := &documentDecoder{decoder: json.NewDecoder(buffered)}
	if first == '[' {
		if _, err := decoder.decoder.Token(); err != nil {
			return nil, err
		}
		decoder.inArray = true
	}
	return decoder, nil
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, r.UnreadByte()
	}
}

// next returns io.EOF after the last document.
func (d *documentDecoder) next() (searchdb.Document, error) {
	if d.inArray && !d.decoder.More() {
		return searchdb.Document{}, io.EOF
	}

	var raw rawDocument
	if err := d.decoder.Decode(&raw); err != nil {
		return searchdb.Document{}, err
	}
	return raw.document()
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.count += int64(n)
	return n, err
}
