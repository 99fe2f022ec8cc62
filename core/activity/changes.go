package activity

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/volatiletech/strmangle"
)

// Snapshot converts v to a map keyed by its JSON field names.
func Snapshot(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	snap := make(map[string]interface{})
	if err = json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return snap
}

// SnapshotList converts a slice to its JSON representation as generic values.
func SnapshotList(v interface{}) []interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var list []interface{}
	if err = json.Unmarshal(data, &list); err != nil {
		return nil
	}
	return list
}

// Changes returns the new and old values of the keys that differ between old and new.
// Keys listed in ignore (e.g. "updated_at") never count as changes.
func Changes(old, new map[string]interface{}, ignore ...string) (attrs, prev map[string]interface{}) {
	attrs = make(map[string]interface{})
	prev = make(map[string]interface{})
	for k, nv := range new {
		if containsKey(ignore, k) {
			continue
		}
		if ov, ok := old[k]; !ok || !reflect.DeepEqual(ov, nv) {
			attrs[k] = nv
			prev[k] = old[k]
		}
	}
	for k, ov := range old {
		if _, ok := new[k]; !ok && !containsKey(ignore, k) {
			attrs[k] = nil
			prev[k] = ov
		}
	}
	return attrs, prev
}

// ChangedKeys lists the changed keys, sorted.
func ChangedKeys(attrs map[string]interface{}) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TextDiff renders a unified diff between two free-text values.
func TextDiff(old, new string) string {
	if old == new {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: "old",
		ToFile:   "new",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}

// Created builds the entry of a newly created subject.
func Created(subjectType string, subjectID interface{}, description string, subject interface{}) Entry {
	return Entry{
		Action:      ActionCreated,
		Description: description,
		SubjectType: subjectType,
		SubjectID:   fmt.Sprint(subjectID),
		Properties:  Properties{Attributes: Snapshot(subject)},
	}
}

// Updated builds the entry of an updated subject, keeping only the changed attributes.
// An empty description is derived from the changed keys.
func Updated(subjectType string, subjectID interface{}, description string, old, new interface{}) Entry {
	attrs, prev := Changes(Snapshot(old), Snapshot(new), "updated_at", "created_at")
	if description == "" {
		keys := ChangedKeys(attrs)
		if len(keys) == 0 {
			description = fmt.Sprintf("%s #%v saved without changes", Label(subjectType), subjectID)
		} else {
			description = fmt.Sprintf("%s #%v updated: %s", Label(subjectType), subjectID, strings.Join(keys, ", "))
		}
	}
	return Entry{
		Action:      ActionUpdated,
		Description: description,
		SubjectType: subjectType,
		SubjectID:   fmt.Sprint(subjectID),
		Properties:  Properties{Attributes: attrs, Old: prev},
	}
}

// Deleted builds the entry of a deleted subject.
func Deleted(subjectType string, subjectID interface{}, subject interface{}) Entry {
	return Entry{
		Action:      ActionDeleted,
		Description: fmt.Sprintf("%s #%v deleted", Label(subjectType), subjectID),
		SubjectType: subjectType,
		SubjectID:   fmt.Sprint(subjectID),
		Properties:  Properties{Old: Snapshot(subject)},
	}
}

// Label turns a snake_case subject type into a human readable label: "program_enrollment" -> "Program Enrollment".
func Label(subjectType string) string {
	titled := strmangle.TitleCase(subjectType)
	var b strings.Builder
	for i, r := range titled {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsKey(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}
