package model

import (
	"fmt"
	"log/slog"
	"sort"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// propertyRow is one datum joined with its membership, property definition,
// optional tag and optional band.
type propertyRow struct {
	DataId         int
	Value          string
	Uid            *int
	PropertyId     int
	MembershipId   int
	ParentObjectId int
	Name           string
	InputMask      *string
	TagObjectId    *int
	BandId         *int
}

const propertySelect = `data.data_id, data.value, data.uid, data.property_id,
	data.membership_id, membership.parent_object_id, property.name,
	property.input_mask, tag.object_id AS tag_object_id, band.band_id`

func (o *Object) propertyQuery() *gorm.DB {
	return o.model.db.Table("data").
		Select(propertySelect).
		Joins("INNER JOIN membership ON membership.membership_id = data.membership_id").
		Joins("INNER JOIN property ON property.property_id = data.property_id").
		Joins("LEFT JOIN tag ON tag.data_id = data.data_id").
		Joins("LEFT JOIN band ON band.data_id = data.data_id").
		Where("membership.child_object_id = ?", o.meta.ObjectId)
}

// dataOrder is the primary ordering of data rows: uid when the document
// carries one, plain row order otherwise. The row-order fallback is a
// supported mode for documents that omit the uid column, not an error path.
func (m *Model) dataOrder() string {
	if m.hasDataUid {
		return "data.uid"
	}
	return "data.data_id"
}

// GetProperties resolves every property datum attributed to this object into
// scope hierarchy -> property name -> value. A datum with a tag appears
// under the tag object's hierarchy, otherwise under the hierarchy of the
// owning membership's parent. Repeated (scope, name) pairs promote the value
// to an ordered list, ordered by band id when band rows exist and by uid
// (or row order) otherwise.
func (o *Object) GetProperties() (map[string]map[string]Value, error) {
	var rows []propertyRow
	result := o.propertyQuery().Order(o.model.dataOrder()).Scan(&rows)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving object properties", result.Error)
	}

	grouped := make(map[string]map[string]*entry)
	order := make(map[string][]string)

	for _, row := range rows {
		scopeId := row.ParentObjectId
		if row.TagObjectId != nil {
			scopeId = *row.TagObjectId
		}
		scope, err := o.model.HierarchyForObjectId(scopeId)
		if err != nil {
			return nil, err
		}

		mask := parseMask(row.InputMask)
		value, _ := mask.label(row.Value)

		if grouped[scope] == nil {
			grouped[scope] = make(map[string]*entry)
		}
		e := grouped[scope][row.Name]
		if e == nil {
			e = &entry{}
			grouped[scope][row.Name] = e
			order[scope] = append(order[scope], row.Name)
		}
		e.values = append(e.values, value)
		e.bands = append(e.bands, row.BandId)
	}

	props := make(map[string]map[string]Value, len(grouped))
	for scope, names := range grouped {
		props[scope] = make(map[string]Value, len(names))
		for _, name := range order[scope] {
			props[scope][name] = names[name].value()
		}
	}
	return props, nil
}

// entry accumulates the datums of one (scope, name) pair in arrival order.
type entry struct {
	values []string
	bands  []*int
}

// value assembles the accumulated datums into a scalar or ordered list,
// re-sorting by band id when any datum carries a band row.
func (e *entry) value() Value {
	if len(e.values) == 1 {
		return Scalar(e.values[0])
	}

	banded := false
	for _, b := range e.bands {
		if b != nil {
			banded = true
			break
		}
	}
	values := append([]string(nil), e.values...)
	if banded {
		idx := make([]int, len(values))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			ba, bb := e.bands[idx[a]], e.bands[idx[b]]
			if ba == nil || bb == nil {
				return ba != nil
			}
			return *ba < *bb
		})
		sorted := make([]string, len(values))
		for i, j := range idx {
			sorted[i] = values[j]
		}
		values = sorted
	}
	return List(values...)
}

// GetProperty resolves a property against the default System.System scope.
func (o *Object) GetProperty(name string) (Value, error) {
	return o.GetPropertyTag(name, SystemHierarchy)
}

// GetPropertyTag resolves a property scoped to the given tag hierarchy: it
// matches data on the membership whose parent is the tag object, or data
// whose tag row points at it. Zero matches fail with ErrNoData.
func (o *Object) GetPropertyTag(name, tag string) (Value, error) {
	tagObj, err := o.model.Object(tag)
	if err != nil {
		return Value{}, err
	}

	var rows []propertyRow
	result := o.propertyQuery().
		Where("property.name = ?", name).
		Where("membership.parent_object_id = ? OR tag.object_id = ?", tagObj.Id(), tagObj.Id()).
		Order(o.model.dataOrder()).
		Scan(&rows)
	if result.Error != nil {
		return Value{}, schema.NewDbError("retrieving property data", result.Error)
	}
	if len(rows) == 0 {
		return Value{}, fmt.Errorf("%w: '%v' on %v (tag %v)", ErrNoData, name, o.Hierarchy(), tag)
	}

	mask := parseMask(rows[0].InputMask)
	if len(rows) == 1 {
		return mask.value(rows[0].Value), nil
	}

	e := &entry{}
	for _, row := range rows {
		value, _ := mask.label(row.Value)
		e.values = append(e.values, value)
		e.bands = append(e.bands, row.BandId)
	}
	return e.value(), nil
}

// SetProperty writes a property value against the given tag hierarchy.
//
// When the tag's class is a direct collection parent for this object's
// class, the existing data rows of the matching membership are updated in
// place; scalar/list shape must match the stored rows or the write fails
// with ErrArityMismatch.
//
// Otherwise the write is a tag override (e.g. tagging by Scenario): the
// matching tagged datum is updated, or a new data+tag row pair is inserted
// under the object's System membership. This path also flips is_dynamic and
// is_enabled on the SHARED property definition, affecting every object that
// uses the property; the flip is logged.
func (o *Object) SetProperty(name string, value Value, tag string) error {
	tagObj, err := o.model.Object(tag)
	if err != nil {
		return err
	}

	if _, direct := o.class.ValidPropertiesByName[tagObj.Class().Name()]; !direct {
		return o.setTaggedProperty(name, value, tagObj)
	}
	return o.setDirectProperty(name, value, tagObj)
}

func (o *Object) setDirectProperty(name string, value Value, tagObj *Object) error {
	byName := o.class.ValidPropertiesByName[tagObj.Class().Name()]
	propId, ok := byName[name]
	if !ok {
		return fmt.Errorf("%w: '%v' for parent class %v", ErrNoSuchProperty, name, tagObj.Class().Name())
	}
	prop, err := schema.GetProperty(o.model.db, propId)
	if err != nil {
		return err
	}
	mask := parseMask(prop.InputMask)

	membership, found, err := o.membershipWithParent(tagObj.Id())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no membership between %v and %v", ErrNoData, tagObj.Hierarchy(), o.Hierarchy())
	}

	var data []schema.Data
	result := o.model.db.Order(o.model.dataOrder()).
		Find(&data, "membership_id = ? AND property_id = ?", membership.MembershipId, propId)
	if result.Error != nil {
		return schema.NewDbError("retrieving property data rows", result.Error)
	}

	switch {
	case len(data) == 0:
		return fmt.Errorf("%w: no existing data for membership %v", ErrNoData, membership.MembershipId)

	case len(data) == 1:
		if value.IsList() {
			return fmt.Errorf("%w: list write to single-valued property '%v'", ErrArityMismatch, name)
		}
		stored, err := mask.code(value.String())
		if err != nil {
			return err
		}
		result = o.model.db.Model(&schema.Data{}).
			Where("data_id = ?", data[0].DataId).Update("value", stored)
		if result.Error != nil {
			return schema.NewDbError("updating property data", result.Error)
		}
		return nil

	default:
		if !value.IsList() {
			return fmt.Errorf("%w: scalar write to list-valued property '%v'", ErrArityMismatch, name)
		}
		if value.Len() != len(data) {
			return fmt.Errorf("%w: %v values passed for %v stored rows of '%v'",
				ErrArityMismatch, value.Len(), len(data), name)
		}
		// Data rows are already in list order; elements update positionally.
		return o.model.db.Transaction(func(txn *gorm.DB) error {
			for i, item := range value.Items() {
				stored, err := mask.code(item)
				if err != nil {
					return err
				}
				result := txn.Model(&schema.Data{}).
					Where("data_id = ?", data[i].DataId).Update("value", stored)
				if result.Error != nil {
					return schema.NewDbError("updating property data list", result.Error)
				}
			}
			return nil
		})
	}
}

func (o *Object) setTaggedProperty(name string, value Value, tagObj *Object) error {
	if value.IsList() {
		return fmt.Errorf("%w: overwriting a list of tagged data", ErrUnsupportedOperation)
	}

	// An existing datum already tagged to this object wins over inserting.
	var tags []schema.Tag
	result := o.model.db.Find(&tags, "object_id = ?", tagObj.Id())
	if result.Error != nil {
		return schema.NewDbError("retrieving candidate tags", result.Error)
	}

	for _, t := range tags {
		var data schema.Data
		result := o.model.db.First(&data, "data_id = ?", t.DataId)
		if result.Error != nil {
			return schema.NewDbError("retrieving tagged data row", result.Error)
		}
		prop, err := schema.GetProperty(o.model.db, data.PropertyId)
		if err != nil {
			return err
		}
		if prop.Name != name {
			continue
		}
		var membership schema.Membership
		result = o.model.db.First(&membership, "membership_id = ?", data.MembershipId)
		if result.Error != nil {
			return schema.NewDbError("retrieving tagged membership", result.Error)
		}
		if membership.ChildObjectId != o.meta.ObjectId {
			continue
		}

		stored, err := parseMask(prop.InputMask).code(value.String())
		if err != nil {
			return err
		}
		return o.model.db.Transaction(func(txn *gorm.DB) error {
			if err := o.model.enableDynamic(txn, prop); err != nil {
				return err
			}
			result := txn.Model(&schema.Data{}).Where("data_id = ?", data.DataId).Update("value", stored)
			if result.Error != nil {
				return schema.NewDbError("updating tagged data", result.Error)
			}
			return nil
		})
	}

	// No existing tagged datum: insert a new one under the System
	// membership and point a tag row at the tag object.
	systemProps, ok := o.class.ValidPropertiesByName["System"]
	if !ok {
		return fmt.Errorf("%w: class %v has no System collection properties", ErrNoSuchProperty, o.class.Name())
	}
	propId, ok := systemProps[name]
	if !ok {
		return fmt.Errorf("%w: '%v' for parent class System", ErrNoSuchProperty, name)
	}
	prop, err := schema.GetProperty(o.model.db, propId)
	if err != nil {
		return err
	}
	stored, err := parseMask(prop.InputMask).code(value.String())
	if err != nil {
		return err
	}

	systemObj, err := o.model.Object(SystemHierarchy)
	if err != nil {
		return err
	}
	membership, found, err := o.membershipWithParent(systemObj.Id())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no System membership for %v", ErrNoData, o.Hierarchy())
	}

	err = o.model.db.Transaction(func(txn *gorm.DB) error {
		if err := o.model.enableDynamic(txn, prop); err != nil {
			return err
		}
		uid := o.model.ids.Next("uid")
		data := schema.Data{
			DataId:       o.model.ids.Next("data"),
			MembershipId: membership.MembershipId,
			PropertyId:   propId,
			Value:        stored,
			Uid:          &uid,
		}
		if result := txn.Create(&data); result.Error != nil {
			return schema.NewDbError("creating tagged data row", result.Error)
		}
		tagRow := schema.Tag{DataId: data.DataId, ObjectId: tagObj.Id()}
		if result := txn.Create(&tagRow); result.Error != nil {
			return schema.NewDbError("creating tag row", result.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return o.model.SetConfig("Dynamic", "-1")
}

// enableDynamic flips is_dynamic/is_enabled to true on a property
// definition. The definition is shared: the flip affects every object whose
// data uses this property, which is how the source format models dynamic
// properties.
func (m *Model) enableDynamic(txn *gorm.DB, prop schema.Property) error {
	if prop.IsDynamic != nil && *prop.IsDynamic == "true" &&
		prop.IsEnabled != nil && *prop.IsEnabled == "true" {
		return nil
	}
	slog.Info("enabling dynamic flag on shared property definition",
		"property", prop.Name, "property_id", prop.PropertyId)
	result := txn.Model(&schema.Property{}).
		Where("property_id = ?", prop.PropertyId).
		Updates(map[string]interface{}{"is_dynamic": "true", "is_enabled": "true"})
	if result.Error != nil {
		return schema.NewDbError("enabling dynamic property", result.Error)
	}
	return nil
}

// SetProperties applies each entry with the default System.System tag.
// It is NOT transactional across properties: a failure leaves earlier
// entries set. Callers needing atomicity must wrap their own rollback.
func (o *Object) SetProperties(values map[string]Value) error {
	for name, value := range values {
		if err := o.SetProperty(name, value, SystemHierarchy); err != nil {
			return fmt.Errorf("setting property '%v': %w", name, err)
		}
	}
	return nil
}
