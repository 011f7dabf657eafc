package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"project_associa/internal/entities"
)

// Directory custom fields were renamed several times across schema versions. Each logical
// attribute lists its known keys in priority order; the first non-empty value wins.
var (
	nameAliases             = []string{"nome_completo", "nome_paciente", "nome", "name"}
	cpfAliases              = []string{"cpf", "cpf_paciente", "documento"}
	responsibleNameAliases  = []string{"responsible_name", "nome_responsavel", "responsavel_nome", "nome_do_responsavel", "responsavel"}
	responsibleCPFAliases   = []string{"responsible_cpf", "cpf_responsavel", "responsavel_cpf", "cpf_do_responsavel"}
	relationshipTypeAliases = []string{"relationship_type", "tipo_vinculo", "parentesco", "grau_parentesco", "vinculo"}
)

// fieldValue returns the first non-empty value among aliases.
func fieldValue(fields map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if v := stringify(fields[key]); v != "" {
			return v
		}
	}
	return ""
}

// stringify flattens the shapes ACF hands back: plain strings, numbers,
// select fields ({"value","label"}) and repeaters (first element).
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return ""
	case map[string]interface{}:
		if s := stringify(val["value"]); s != "" {
			return s
		}
		return stringify(val["label"])
	case []interface{}:
		for _, item := range val {
			if s := stringify(item); s != "" {
				return s
			}
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// mergeDirectoryRecord hydrates p from rec. Directory values replace local ones only when
// non-empty, so a partial record never blanks out what is already known.
func mergeDirectoryRecord(p *entities.Patient, rec *entities.DirectoryRecord) {
	name := fieldValue(rec.Fields, nameAliases)
	if name == "" {
		name = strings.TrimSpace(rec.Title)
	}
	setIfPresent(&p.Name, name)
	setIfPresent(&p.CPF, fieldValue(rec.Fields, cpfAliases))
	setIfPresent(&p.ResponsibleName, fieldValue(rec.Fields, responsibleNameAliases))
	setIfPresent(&p.ResponsibleCPF, fieldValue(rec.Fields, responsibleCPFAliases))
	setIfPresent(&p.RelationshipType, fieldValue(rec.Fields, relationshipTypeAliases))

	if rec.ExternalID != "" {
		id := rec.ExternalID
		p.ExternalID = &id
	}
	p.DirectoryFields = rec.Fields
	p.Status = entities.PatientMember
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
