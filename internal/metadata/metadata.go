// ABOUTME: Builds product metadata documents and uploads them as JSON blobs
// ABOUTME: Attributes keep the caller's key order in the serialized document

package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/2389/showcase-backend/internal/apperr"
)

// ContentType is the content type metadata documents are uploaded with.
const ContentType = "application/json"

// Uploader stores a blob and returns its identifier.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// Attribute is one key/value pair of a metadata document.
type Attribute struct {
	Key   string
	Value json.RawMessage
}

// Attributes is an ordered JSON object.
type Attributes []Attribute

// ParseAttributes decodes a JSON object keeping its key order.
// Empty input and "null" yield no attributes.
func ParseAttributes(data []byte) (Attributes, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, apperr.Newf(apperr.KindValidation, "parse attributes", "attributes must be valid JSON")
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return nil, apperr.Newf(apperr.KindValidation, "parse attributes", "attributes must be a JSON object")
	}

	var attrs Attributes
	root.ForEach(func(key, value gjson.Result) bool {
		attrs = append(attrs, Attribute{Key: key.String(), Value: json.RawMessage(value.Raw)})
		return true
	})
	return attrs, nil
}

// MarshalJSON writes the attributes as an object in slice order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(attr.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, attr.Value); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping its key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	attrs, err := ParseAttributes(data)
	if err != nil {
		return err
	}
	*a = attrs
	return nil
}

// Record is the write-once document stored alongside a product.
// Field order here is the serialized key order.
type Record struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Images      []string   `json:"images"`
	Attributes  Attributes `json:"attributes"`
	CreatedAt   string     `json:"created_at"`
}

// Input is what Build needs to assemble a Record.
type Input struct {
	Name        string
	Description string
	Category    string
	Images      []string
	Attributes  Attributes
}

// Result is the uploaded document and its identifier.
type Result struct {
	FID      string
	Record   Record
	Document []byte
}

// Builder assembles metadata records and hands them to an Uploader.
// It never touches a store.
type Builder struct {
	uploader Uploader
	now      func() time.Time
	logger   *slog.Logger
}

// NewBuilder creates a Builder uploading through u.
func NewBuilder(u Uploader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		uploader: u,
		now:      time.Now,
		logger:   logger.With("component", "metadata"),
	}
}

// Build creates the record with created_at set to now, serializes it and
// uploads it as <slug(name)>_metadata.json.
func (b *Builder) Build(ctx context.Context, in Input) (*Result, error) {
	if b.uploader == nil {
		return nil, errors.New("metadata builder has no uploader")
	}

	rec := Record{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Images:      in.Images,
		Attributes:  in.Attributes,
		CreatedAt:   b.now().UTC().Format(time.RFC3339),
	}
	if rec.Images == nil {
		rec.Images = []string{}
	}
	if rec.Attributes == nil {
		rec.Attributes = Attributes{}
	}

	doc, err := Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	filename := Filename(in.Name)
	fid, err := b.uploader.Upload(ctx, doc, filename, ContentType)
	if err != nil {
		return nil, fmt.Errorf("uploading metadata: %w", err)
	}

	b.logger.Info("metadata uploaded", "fid", fid, "filename", filename, "size", len(doc))
	return &Result{FID: fid, Record: rec, Document: doc}, nil
}

// Encode serializes a record. The output is deterministic for a given record.
func Encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Filename returns the blob name used for a product's metadata document.
func Filename(name string) string {
	return Slug(name) + "_metadata.json"
}

// Slug lowercases name and collapses every run of characters other than
// letters and digits into a single underscore.
func Slug(name string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if sb.Len() == 0 {
		return "product"
	}
	return sb.String()
}
