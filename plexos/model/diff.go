package model

import (
	"fmt"
	"sort"
)

// Diff reports structural differences between two models as human-readable
// lines: class keys, object keys per class, then attribute and property
// values per object. Read-only.
func (m *Model) Diff(other *Model) ([]string, error) {
	selfKeys, err := m.ListClasses()
	if err != nil {
		return nil, err
	}
	otherKeys, err := other.ListClasses()
	if err != nil {
		return nil, err
	}

	var lines []string
	missing, extra, common := splitKeys(selfKeys, otherKeys)
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("Missing classes: %v", missing))
	}
	if len(extra) > 0 {
		lines = append(lines, fmt.Sprintf("Extra classes: %v", extra))
	}

	for _, key := range common {
		selfClass, err := m.Class(key)
		if err != nil {
			return nil, err
		}
		otherClass, err := other.Class(key)
		if err != nil {
			return nil, err
		}
		classLines, err := selfClass.Diff(otherClass)
		if err != nil {
			return nil, err
		}
		if len(classLines) > 0 {
			lines = append(lines, fmt.Sprintf("Difference in class %v", key))
			lines = append(lines, classLines...)
		}
	}
	return lines, nil
}

// Diff compares the object sets of two classes and the objects they share.
func (c *Class) Diff(other *Class) ([]string, error) {
	selfKeys, err := c.Objects()
	if err != nil {
		return nil, err
	}
	otherKeys, err := other.Objects()
	if err != nil {
		return nil, err
	}

	var lines []string
	missing, extra, common := splitKeys(selfKeys, otherKeys)
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("  Missing objects: %v", missing))
	}
	if len(extra) > 0 {
		lines = append(lines, fmt.Sprintf("  Extra objects: %v", extra))
	}

	for _, key := range common {
		selfObj, err := c.Object(key)
		if err != nil {
			return nil, err
		}
		otherObj, err := other.Object(key)
		if err != nil {
			return nil, err
		}
		objLines, err := selfObj.Diff(otherObj)
		if err != nil {
			return nil, err
		}
		if len(objLines) > 0 {
			lines = append(lines, fmt.Sprintf("  Difference in object %v", key))
			lines = append(lines, objLines...)
		}
	}
	return lines, nil
}

// Diff compares two objects' attribute values and resolved property maps.
func (o *Object) Diff(other *Object) ([]string, error) {
	var lines []string

	selfAttrs := o.Attributes()
	otherAttrs := other.Attributes()
	missing, extra, common := splitKeys(mapKeys(selfAttrs), mapKeys(otherAttrs))
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("    Missing attributes: %v", missing))
	}
	if len(extra) > 0 {
		lines = append(lines, fmt.Sprintf("    Extra attributes: %v", extra))
	}
	for _, key := range common {
		if selfAttrs[key] != otherAttrs[key] {
			lines = append(lines, fmt.Sprintf("    Different value for attribute %v", key))
			lines = append(lines, fmt.Sprintf("      Orig: %v Comp: %v", selfAttrs[key], otherAttrs[key]))
		}
	}

	selfProps, err := o.GetProperties()
	if err != nil {
		return nil, err
	}
	otherProps, err := other.GetProperties()
	if err != nil {
		return nil, err
	}

	selfScopes := make([]string, 0, len(selfProps))
	for scope := range selfProps {
		selfScopes = append(selfScopes, scope)
	}
	otherScopes := make([]string, 0, len(otherProps))
	for scope := range otherProps {
		otherScopes = append(otherScopes, scope)
	}
	missing, extra, common = splitKeys(selfScopes, otherScopes)
	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("    Missing property scopes: %v", missing))
	}
	if len(extra) > 0 {
		lines = append(lines, fmt.Sprintf("    Extra property scopes: %v", extra))
	}

	for _, scope := range common {
		missingNames, extraNames, commonNames := splitKeys(valueKeys(selfProps[scope]), valueKeys(otherProps[scope]))
		if len(missingNames) > 0 {
			lines = append(lines, fmt.Sprintf("    Missing properties under %v: %v", scope, missingNames))
		}
		if len(extraNames) > 0 {
			lines = append(lines, fmt.Sprintf("    Extra properties under %v: %v", scope, extraNames))
		}
		for _, name := range commonNames {
			if !selfProps[scope][name].Equal(otherProps[scope][name]) {
				lines = append(lines, fmt.Sprintf("    Different value for property %v under %v", name, scope))
				lines = append(lines, fmt.Sprintf("      Orig: %v Comp: %v",
					selfProps[scope][name], otherProps[scope][name]))
			}
		}
	}
	return lines, nil
}

// splitKeys partitions two key sets into only-in-first, only-in-second and
// intersection, each sorted.
func splitKeys(self, other []string) (missing, extra, common []string) {
	selfSet := make(map[string]bool, len(self))
	for _, k := range self {
		selfSet[k] = true
	}
	otherSet := make(map[string]bool, len(other))
	for _, k := range other {
		otherSet[k] = true
	}
	for k := range selfSet {
		if otherSet[k] {
			common = append(common, k)
		} else {
			missing = append(missing, k)
		}
	}
	for k := range otherSet {
		if !selfSet[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	sort.Strings(common)
	return missing, extra, common
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func valueKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
