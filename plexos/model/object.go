package model

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// Object identifies one object and caches its scalar attribute values.
type Object struct {
	model *Model
	class *Class
	meta  schema.Object

	attributes map[string]string
}

func newObject(m *Model, class *Class, meta schema.Object) (*Object, error) {
	object := &Object{
		model:      m,
		class:      class,
		meta:       meta,
		attributes: make(map[string]string),
	}

	var rows []struct {
		Name  string
		Value string
	}
	result := m.db.Table("attribute_data").
		Select("attribute.name, attribute_data.value").
		Joins("INNER JOIN attribute ON attribute.attribute_id = attribute_data.attribute_id").
		Where("attribute_data.object_id = ?", meta.ObjectId).
		Scan(&rows)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving object attributes", result.Error)
	}
	for _, row := range rows {
		object.attributes[row.Name] = row.Value
	}

	return object, nil
}

func (o *Object) Id() int { return o.meta.ObjectId }

func (o *Object) Name() string { return o.meta.Name }

func (o *Object) Class() *Class { return o.class }

// Hierarchy is the universal "Class.Object" address of this object.
func (o *Object) Hierarchy() string {
	return o.class.Name() + "." + o.meta.Name
}

// Attributes returns the attribute values currently set, keyed by name.
func (o *Object) Attributes() map[string]string {
	out := make(map[string]string, len(o.attributes))
	for k, v := range o.attributes {
		out[k] = v
	}
	return out
}

func (o *Object) GetAttribute(name string) (string, error) {
	if value, ok := o.attributes[name]; ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: '%v' in %v", ErrNoSuchAttribute, name, o.Hierarchy())
}

// SetAttribute upserts a scalar attribute value. The attribute must be legal
// for the object's class.
func (o *Object) SetAttribute(name, value string) error {
	attr, ok := o.class.ValidAttributes[name]
	if !ok {
		valid := make([]string, 0, len(o.class.ValidAttributes))
		for k := range o.class.ValidAttributes {
			valid = append(valid, k)
		}
		sort.Strings(valid)
		return fmt.Errorf("%w: '%v' in %v (valid attributes: %v)",
			ErrNoSuchAttribute, name, o.Hierarchy(), strings.Join(valid, ", "))
	}

	result := o.model.db.Model(&schema.AttributeData{}).
		Where("object_id = ? AND attribute_id = ?", o.meta.ObjectId, attr.AttributeId).
		Update("value", value)
	if result.Error != nil {
		return schema.NewDbError("updating attribute data", result.Error)
	}
	if result.RowsAffected == 0 {
		row := schema.AttributeData{
			ObjectId:    o.meta.ObjectId,
			AttributeId: attr.AttributeId,
			Value:       value,
		}
		result = o.model.db.Create(&row)
		if result.Error != nil {
			return schema.NewDbError("creating attribute data", result.Error)
		}
	}

	o.attributes[name] = value
	return nil
}

func (o *Object) DeleteAttribute(name string) error {
	attr, ok := o.class.ValidAttributes[name]
	if !ok {
		return fmt.Errorf("%w: '%v' in %v", ErrNoSuchAttribute, name, o.Hierarchy())
	}
	result := o.model.db.Delete(&schema.AttributeData{},
		"object_id = ? AND attribute_id = ?", o.meta.ObjectId, attr.AttributeId)
	if result.Error != nil {
		return schema.NewDbError("deleting attribute data", result.Error)
	}
	delete(o.attributes, name)
	return nil
}

// Parents returns all parents of this object via the membership table,
// optionally filtered by parent class name.
func (o *Object) Parents(className string) ([]*Object, error) {
	return o.related("parent", className)
}

// Children returns all children of this object, optionally filtered by
// child class name.
func (o *Object) Children(className string) ([]*Object, error) {
	return o.related("child", className)
}

func (o *Object) related(side, className string) ([]*Object, error) {
	var other, this string
	if side == "parent" {
		other, this = "parent_object_id", "child_object_id"
	} else {
		other, this = "child_object_id", "parent_object_id"
	}

	query := o.model.db.Table("membership").
		Select("membership."+other+" AS object_id").
		Where("membership."+this+" = ?", o.meta.ObjectId).
		Order("membership.membership_id")
	if className != "" {
		query = query.
			Joins("INNER JOIN class ON class.class_id = membership." + side + "_class_id").
			Where("class.name = ?", className)
	}

	var ids []int
	result := query.Scan(&ids)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving memberships", result.Error)
	}

	objects := make([]*Object, 0, len(ids))
	for _, id := range ids {
		object, err := o.model.ObjectById(id)
		if err != nil {
			return nil, err
		}
		objects = append(objects, object)
	}
	return objects, nil
}

// Category returns the name of this object's category.
func (o *Object) Category() (string, error) {
	if o.meta.CategoryId == nil {
		return "", fmt.Errorf("%w: object %v has no category", ErrNoSuchCategory, o.Hierarchy())
	}
	var category schema.Category
	result := o.model.db.First(&category, "category_id = ?", *o.meta.CategoryId)
	if result.Error != nil {
		return "", schema.NewDbError("retrieving object category", result.Error)
	}
	return category.Name, nil
}

// SetCategory assigns the object to a named category of its own class.
func (o *Object) SetCategory(name string) error {
	categories, err := o.class.Categories()
	if err != nil {
		return err
	}
	for _, cat := range categories {
		if cat.Name == name {
			result := o.model.db.Model(&schema.Object{}).
				Where("object_id = ?", o.meta.ObjectId).
				Update("category_id", cat.CategoryId)
			if result.Error != nil {
				return schema.NewDbError("updating object category", result.Error)
			}
			categoryId := cat.CategoryId
			o.meta.CategoryId = &categoryId
			return nil
		}
	}
	return fmt.Errorf("%w: '%v' for class %v", ErrNoSuchCategory, name, o.class.Name())
}

// membershipWithParent finds the membership whose parent is the given object
// and whose child is this object.
func (o *Object) membershipWithParent(parentObjectId int) (schema.Membership, bool, error) {
	var membership schema.Membership
	result := o.model.db.First(&membership,
		"child_object_id = ? AND parent_object_id = ?", o.meta.ObjectId, parentObjectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return membership, false, nil
		}
		return membership, false, schema.NewDbError("retrieving membership", result.Error)
	}
	return membership, true, nil
}

// Dump writes a human-readable description of the object. Membership is a
// directed edge set, not a tree: an object related to another in both
// directions is reported as a peer.
func (o *Object) Dump(w io.Writer, indent int) error {
	pad := strings.Repeat("        ", indent)
	fmt.Fprintf(w, "%sObject:    %-30v            ID: %v\n", pad, o.meta.Name, o.meta.ObjectId)
	fmt.Fprintf(w, "%s    Class: %-30v            ID: %v\n", pad, o.class.Name(), o.meta.ClassId)

	if len(o.attributes) > 0 {
		fmt.Fprintf(w, "%s    Attributes set:\n", pad)
		names := make([]string, 0, len(o.attributes))
		for name := range o.attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s        %v = %v\n", pad, name, o.attributes[name])
		}
	} else {
		fmt.Fprintf(w, "%s    No attributes set\n", pad)
	}

	childObjs, err := o.Children("")
	if err != nil {
		return err
	}
	parentObjs, err := o.Parents("")
	if err != nil {
		return err
	}
	allChildren := make(map[string]bool)
	for _, c := range childObjs {
		allChildren[c.Hierarchy()] = true
	}
	allParents := make(map[string]bool)
	for _, p := range parentObjs {
		allParents[p.Hierarchy()] = true
	}

	var parents, children, peers []string
	for h := range allParents {
		if allChildren[h] {
			peers = append(peers, h)
		} else {
			parents = append(parents, h)
		}
	}
	for h := range allChildren {
		if !allParents[h] {
			children = append(children, h)
		}
	}
	sort.Strings(parents)
	sort.Strings(peers)
	sort.Strings(children)

	dumpGroup(w, pad, "Parents", parents)
	dumpGroup(w, pad, "Peers", peers)
	dumpGroup(w, pad, "Children", children)

	props, err := o.GetProperties()
	if err != nil {
		return err
	}
	dumpScoped(w, pad, "Properties", props)

	text, err := o.GetText()
	if err != nil {
		return err
	}
	scoped := make(map[string]map[string]Value, len(text))
	for scope, values := range text {
		scoped[scope] = make(map[string]Value, len(values))
		for name, value := range values {
			scoped[scope][name] = Scalar(value)
		}
	}
	dumpScoped(w, pad, "Text values", scoped)
	return nil
}

func dumpGroup(w io.Writer, pad, label string, entries []string) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%s    No %v\n", pad, strings.ToLower(label))
		return
	}
	fmt.Fprintf(w, "%s    %v (%v):\n", pad, label, len(entries))
	for _, entry := range entries {
		fmt.Fprintf(w, "%s        %v\n", pad, entry)
	}
}

func dumpScoped(w io.Writer, pad, label string, values map[string]map[string]Value) {
	if len(values) == 0 {
		fmt.Fprintf(w, "%s    No %v\n", pad, strings.ToLower(label))
		return
	}
	fmt.Fprintf(w, "%s    %v:\n", pad, label)
	scopes := make([]string, 0, len(values))
	for scope := range values {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	for _, scope := range scopes {
		fmt.Fprintf(w, "%s        %v\n", pad, scope)
		names := make([]string, 0, len(values[scope]))
		for name := range values[scope] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s            %v=%v\n", pad, name, values[scope][name])
		}
	}
}
