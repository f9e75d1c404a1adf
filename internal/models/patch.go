package models

import "strings"

// CoursePatch is a partial set of course fields. A nil pointer means the
// field was not supplied.
type CoursePatch struct {
	Provider             *string `json:"provider,omitempty"`
	Link                 *string `json:"link,omitempty"`
	CourseName           *string `json:"course_name,omitempty"`
	Summary              *string `json:"summary,omitempty"`
	Track                *string `json:"track,omitempty"`
	Platform             *string `json:"platform,omitempty"`
	HandsOn              *string `json:"hands_on,omitempty"`
	SkillLevel           *string `json:"skill_level,omitempty"`
	Difficulty           *string `json:"difficulty,omitempty"`
	Length               *string `json:"length,omitempty"`
	EvidenceOfCompletion *string `json:"evidence_of_completion,omitempty"`
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// PatchFromFields returns a patch that supplies every field of f.
func PatchFromFields(f CourseFields) CoursePatch {
	return CoursePatch{
		Provider:             String(f.Provider),
		Link:                 String(f.Link),
		CourseName:           String(f.CourseName),
		Summary:              String(f.Summary),
		Track:                String(f.Track),
		Platform:             String(f.Platform),
		HandsOn:              String(f.HandsOn),
		SkillLevel:           String(f.SkillLevel),
		Difficulty:           String(f.Difficulty),
		Length:               String(f.Length),
		EvidenceOfCompletion: String(f.EvidenceOfCompletion),
	}
}

func (p CoursePatch) fields() []struct {
	column string
	value  *string
} {
	return []struct {
		column string
		value  *string
	}{
		{"provider", p.Provider},
		{"link", p.Link},
		{"course_name", p.CourseName},
		{"summary", p.Summary},
		{"track", p.Track},
		{"platform", p.Platform},
		{"hands_on", p.HandsOn},
		{"skill_level", p.SkillLevel},
		{"difficulty", p.Difficulty},
		{"length", p.Length},
		{"evidence_of_completion", p.EvidenceOfCompletion},
	}
}

// IsEmpty reports whether no field is supplied.
func (p CoursePatch) IsEmpty() bool {
	for _, f := range p.fields() {
		if f.value != nil {
			return false
		}
	}
	return true
}

// LinkValue returns the trimmed link, or "" when not supplied.
func (p CoursePatch) LinkValue() string {
	if p.Link == nil {
		return ""
	}
	return strings.TrimSpace(*p.Link)
}

// ApplyTo overwrites the supplied fields of dst and normalizes the result.
func (p CoursePatch) ApplyTo(dst *CourseFields) {
	targets := map[string]*string{
		"provider":               &dst.Provider,
		"link":                   &dst.Link,
		"course_name":            &dst.CourseName,
		"summary":                &dst.Summary,
		"track":                  &dst.Track,
		"platform":               &dst.Platform,
		"hands_on":               &dst.HandsOn,
		"skill_level":            &dst.SkillLevel,
		"difficulty":             &dst.Difficulty,
		"length":                 &dst.Length,
		"evidence_of_completion": &dst.EvidenceOfCompletion,
	}
	for _, f := range p.fields() {
		if f.value != nil {
			*targets[f.column] = *f.value
		}
	}
	dst.Normalize()
}

// Columns returns the database column names of the supplied fields.
func (p CoursePatch) Columns() []string {
	var cols []string
	for _, f := range p.fields() {
		if f.value != nil {
			cols = append(cols, f.column)
		}
	}
	return cols
}

// ColumnValues maps supplied columns to their values taken from the
// normalized record, so stored values always carry defaults.
func (p CoursePatch) ColumnValues(normalized CourseFields) map[string]interface{} {
	all := map[string]interface{}{
		"provider":               normalized.Provider,
		"link":                   normalized.Link,
		"course_name":            normalized.CourseName,
		"summary":                normalized.Summary,
		"track":                  normalized.Track,
		"platform":               normalized.Platform,
		"hands_on":               normalized.HandsOn,
		"skill_level":            normalized.SkillLevel,
		"difficulty":             normalized.Difficulty,
		"length":                 normalized.Length,
		"evidence_of_completion": normalized.EvidenceOfCompletion,
	}
	values := make(map[string]interface{})
	for _, col := range p.Columns() {
		values[col] = all[col]
	}
	return values
}
