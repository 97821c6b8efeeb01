// Package domain contains the core types shared by ingestion, storage and
// reconciliation.
package domain

// Metadata holds the optional "key: value" facts written in an issue body.
// A nil field means the body did not state it; the store keeps whatever was
// recorded before.
type Metadata struct {
	Publisher     *string
	YearPublished *string
	YearEdition   *string
	ISBN          *string
	Width         *float64
	Length        *float64
	Height        *float64
	TotalPages    *int64
	WordCount     *float64
	Library       *string
	Translator    *string
	Collection    *int64
	Language      *string
	Genre         *string
}

// metadataField binds a column name to a Metadata field.
type metadataField struct {
	column string
	get    func(m *Metadata) any
	set    func(m *Metadata, v any)
}

func stringField(column string, p func(m *Metadata) **string) metadataField {
	return metadataField{
		column: column,
		get: func(m *Metadata) any {
			if v := *p(m); v != nil {
				return *v
			}
			return nil
		},
		set: func(m *Metadata, v any) {
			if s, ok := v.(string); ok {
				*p(m) = &s
			}
		},
	}
}

func floatField(column string, p func(m *Metadata) **float64) metadataField {
	return metadataField{
		column: column,
		get: func(m *Metadata) any {
			if v := *p(m); v != nil {
				return *v
			}
			return nil
		},
		set: func(m *Metadata, v any) {
			switch n := v.(type) {
			case float64:
				*p(m) = &n
			case int64:
				f := float64(n)
				*p(m) = &f
			case int:
				f := float64(n)
				*p(m) = &f
			}
		},
	}
}

func intField(column string, p func(m *Metadata) **int64) metadataField {
	return metadataField{
		column: column,
		get: func(m *Metadata) any {
			if v := *p(m); v != nil {
				return *v
			}
			return nil
		},
		set: func(m *Metadata, v any) {
			switch n := v.(type) {
			case int64:
				*p(m) = &n
			case int:
				i := int64(n)
				*p(m) = &i
			}
		},
	}
}

var metadataFields = []metadataField{
	stringField("publisher", func(m *Metadata) **string { return &m.Publisher }),
	stringField("year_published", func(m *Metadata) **string { return &m.YearPublished }),
	stringField("year_edition", func(m *Metadata) **string { return &m.YearEdition }),
	stringField("isbn", func(m *Metadata) **string { return &m.ISBN }),
	floatField("width", func(m *Metadata) **float64 { return &m.Width }),
	floatField("length", func(m *Metadata) **float64 { return &m.Length }),
	floatField("height", func(m *Metadata) **float64 { return &m.Height }),
	intField("total_pages", func(m *Metadata) **int64 { return &m.TotalPages }),
	floatField("word_count", func(m *Metadata) **float64 { return &m.WordCount }),
	stringField("library", func(m *Metadata) **string { return &m.Library }),
	stringField("translator", func(m *Metadata) **string { return &m.Translator }),
	intField("collection", func(m *Metadata) **int64 { return &m.Collection }),
	stringField("language", func(m *Metadata) **string { return &m.Language }),
	stringField("genre", func(m *Metadata) **string { return &m.Genre }),
}

// Values returns every metadata column, with nil for unset fields.
func (m Metadata) Values() map[string]any {
	values := make(map[string]any, len(metadataFields))
	for _, f := range metadataFields {
		values[f.column] = f.get(&m)
	}
	return values
}

// MetadataFromValues builds Metadata from column values. Unknown columns
// and values of the wrong type are ignored.
func MetadataFromValues(values map[string]any) Metadata {
	var m Metadata
	for _, f := range metadataFields {
		if v, ok := values[f.column]; ok && v != nil {
			f.set(&m, v)
		}
	}
	return m
}
