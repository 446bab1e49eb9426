package article

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	// ErrInvalidPatch is returned when an update body cannot be decoded.
	ErrInvalidPatch = errors.New("invalid article patch")
	// ErrUnknownField is returned when an update body names a field that is not editable.
	ErrUnknownField = errors.New("unknown article field")
)

// Editable field names accepted in an update body.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldBody        = "body"
	FieldTagList     = "tagList"
	FieldCoAuthors   = "coAuthors"

	// fieldCreatedAt is immutable after creation and silently dropped.
	fieldCreatedAt = "createdAt"
	envelopeKey    = "article"
)

// Patch is a typed partial update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Body        *string
	TagList     *[]string

	// CoAuthors is the raw comma-separated email list as submitted.
	CoAuthors *string
}

// DecodePatch reads a JSON update body. The body may be the bare field object or
// wrapped as {"article": {...}}. createdAt is dropped; any other key outside the
// editable set is rejected. A null value is treated as an absent field.
func DecodePatch(r io.Reader) (Patch, error) {
	var p Patch

	raw, err := io.ReadAll(r)
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return p, err
	}
	delete(fields, fieldCreatedAt)
	if inner, ok := fields[envelopeKey]; ok && len(fields) == 1 {
		if fields, err = decodeObject(inner); err != nil {
			return p, err
		}
		delete(fields, fieldCreatedAt)
	}

	if unknown := unknownFields(fields); len(unknown) > 0 {
		return p, fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(unknown, ", "))
	}

	if p.Title, err = decodeString(fields, FieldTitle); err != nil {
		return p, err
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return p, fmt.Errorf("%w: title must not be blank", ErrInvalidPatch)
	}
	if p.Description, err = decodeString(fields, FieldDescription); err != nil {
		return p, err
	}
	if p.Body, err = decodeString(fields, FieldBody); err != nil {
		return p, err
	}
	if p.CoAuthors, err = decodeString(fields, FieldCoAuthors); err != nil {
		return p, err
	}
	if p.TagList, err = decodeTags(fields); err != nil {
		return p, err
	}

	return p, nil
}

// Apply assigns the content fields of the patch onto a. Co-authors are resolved
// separately and never assigned here.
func (p Patch) Apply(a *Article) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Body != nil {
		a.Body = *p.Body
	}
	if p.TagList != nil {
		a.TagList = append([]string(nil), (*p.TagList)...)
	}
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPatch)
	}
	return fields, nil
}

func unknownFields(fields map[string]json.RawMessage) []string {
	var unknown []string
	for key := range fields {
		switch key {
		case FieldTitle, FieldDescription, FieldBody, FieldTagList, FieldCoAuthors:
		default:
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidPatch, key)
	}
	return &s, nil
}

// decodeTags accepts a JSON array of strings or a comma-separated string.
func decodeTags(fields map[string]json.RawMessage) (*[]string, error) {
	raw, ok := fields[FieldTagList]
	if !ok || isNull(raw) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, fmt.Errorf("%w: %s must be a list or a comma-separated string", ErrInvalidPatch, FieldTagList)
		}
		list = strings.Split(joined, ",")
	}

	tags := make([]string, 0, len(list))
	for _, tag := range list {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return &tags, nil
}
