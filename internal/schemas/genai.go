package schemas

import (
	"sort"

	"google.golang.org/genai"
)

// ToGenAI переводит схему реестра в *genai.Schema для ResponseSchema Gemini.
func ToGenAI(s Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	switch s["type"] {
	case "object":
		out.Type = genai.TypeObject
		props, _ := s["properties"].(Schema)
		if len(props) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(props))
			var optional []string
			required := requiredOf(s)
			for name, p := range props {
				ps, _ := p.(Schema)
				out.Properties[name] = ToGenAI(ps)
				if !contains(required, name) {
					optional = append(optional, name)
				}
			}
			sort.Strings(optional)
			// Порядок полей в ответе: сначала обязательные в порядке объявления.
			out.PropertyOrdering = append(append([]string{}, required...), optional...)
		}
		out.Required = requiredOf(s)
	case "array":
		out.Type = genai.TypeArray
		items, _ := s["items"].(Schema)
		out.Items = ToGenAI(items)
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
