package model

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	out := f
	out.Validations = nil
	if len(f.Validations) > 0 {
		out.Validations = make([]ValidationRule, 0, len(f.Validations))
		for _, rule := range f.Validations {
			out.Validations = append(out.Validations, rule.clone())
		}
	}
	out.Metadata = cloneStrings(f.Metadata)
	return out
}

// Clone returns a deep copy of the form model.
func (m FormModel) Clone() FormModel {
	out := m
	out.Fields = cloneFields(m.Fields)
	out.Metadata = cloneStrings(m.Metadata)
	return out
}

// Extend returns a copy of the form with id replaced and extra fields
// appended after the existing ones.
func (m FormModel) Extend(id string, extra ...Field) FormModel {
	out := m.Clone()
	if id != "" {
		out.ID = id
	}
	for _, field := range extra {
		out.Fields = append(out.Fields, field.Clone())
	}
	return out
}

// Field looks up a field by name.
func (m FormModel) Field(name string) (Field, bool) {
	for _, field := range m.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// FieldNames returns the declared field names in order.
func (m FormModel) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, field := range m.Fields {
		names = append(names, field.Name)
	}
	return names
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, 0, len(fields))
	for _, field := range fields {
		out = append(out, field.Clone())
	}
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
