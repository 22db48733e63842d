package model

import (
	"fmt"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// DefaultTextClass is the class string payloads attach under when the caller
// does not name one; file-path-valued data uses it.
const DefaultTextClass = "Data File"

// GetText returns the string payloads attached to this object's data,
// keyed scope hierarchy -> property name -> value with the same tag
// redirection as GetProperties.
func (o *Object) GetText() (map[string]map[string]string, error) {
	var rows []struct {
		ParentObjectId int
		PropertyId     int
		Value          string
		DataId         int
	}
	result := o.model.db.Table("membership").
		Select("membership.parent_object_id, data.property_id, text.value, text.data_id").
		Joins("INNER JOIN data ON membership.membership_id = data.membership_id").
		Joins("INNER JOIN text ON text.data_id = data.data_id").
		Where("membership.child_object_id = ?", o.meta.ObjectId).
		Scan(&rows)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving object text", result.Error)
	}

	text := make(map[string]map[string]string)
	put := func(scope, name, value string) {
		if text[scope] == nil {
			text[scope] = make(map[string]string)
		}
		text[scope][name] = value
	}

	for _, row := range rows {
		parent, err := o.model.ObjectById(row.ParentObjectId)
		if err != nil {
			return nil, err
		}
		props, ok := o.class.ValidProperties[parent.Class().Name()]
		if !ok {
			continue
		}
		prop, ok := props[row.PropertyId]
		if !ok {
			continue
		}

		var tags []schema.Tag
		result := o.model.db.Find(&tags, "data_id = ?", row.DataId)
		if result.Error != nil {
			return nil, schema.NewDbError("retrieving text tags", result.Error)
		}
		if len(tags) == 0 {
			put(parent.Hierarchy(), prop.Name, row.Value)
			continue
		}
		for _, t := range tags {
			scope, err := o.model.HierarchyForObjectId(t.ObjectId)
			if err != nil {
				return nil, err
			}
			put(scope, prop.Name, row.Value)
		}
	}
	return text, nil
}

// SetText writes a string payload for the named property, creating a
// default-valued data row first when the target membership has none. A tag
// other than System.System that differs from the membership's parent gets a
// tag row. New memberships are never created here.
func (o *Object) SetText(name, value, tag, textClass string) error {
	if textClass == "" {
		textClass = DefaultTextClass
	}
	class, found, err := schema.GetClassByName(o.model.db, textClass)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: text class '%v'", ErrNoSuchClass, textClass)
	}

	var targets []struct {
		ParentObjectId int
		MembershipId   int
		PropertyId     int
	}
	result := o.model.db.Table("membership").
		Select("membership.parent_object_id, membership.membership_id, property.property_id").
		Joins("INNER JOIN collection ON collection.collection_id = membership.collection_id").
		Joins("INNER JOIN property ON property.collection_id = collection.collection_id").
		Where("membership.child_object_id = ? AND property.name = ?", o.meta.ObjectId, name).
		Scan(&targets)
	if result.Error != nil {
		return schema.NewDbError("retrieving text target memberships", result.Error)
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: '%v' on %v", ErrNoSuchProperty, name, o.Hierarchy())
	}

	// Resolve the tag up front so the transactions below only ever touch
	// their own connection.
	var tagObj *Object
	if tag != SystemHierarchy {
		tagObj, err = o.model.Object(tag)
		if err != nil {
			return err
		}
	}

	for _, target := range targets {
		parent, err := o.model.ObjectById(target.ParentObjectId)
		if err != nil {
			return err
		}

		err = o.model.db.Transaction(func(txn *gorm.DB) error {
			var data []schema.Data
			result := txn.Find(&data,
				"membership_id = ? AND property_id = ?", target.MembershipId, target.PropertyId)
			if result.Error != nil {
				return schema.NewDbError("retrieving text data rows", result.Error)
			}

			var dataId int
			if len(data) == 0 {
				// No datum yet: seed one with the property's default value.
				prop := o.class.ValidProperties[parent.Class().Name()][target.PropertyId]
				defaultValue := ""
				if prop.DefaultValue != nil {
					defaultValue = *prop.DefaultValue
				}
				uid := o.model.ids.Next("uid")
				row := schema.Data{
					DataId:       o.model.ids.Next("data"),
					MembershipId: target.MembershipId,
					PropertyId:   target.PropertyId,
					Value:        defaultValue,
					Uid:          &uid,
				}
				if result := txn.Create(&row); result.Error != nil {
					return schema.NewDbError("creating default text data row", result.Error)
				}
				dataId = row.DataId
			} else {
				dataId = data[0].DataId
			}

			result = txn.Model(&schema.Text{}).Where("data_id = ?", dataId).Update("value", value)
			if result.Error != nil {
				return schema.NewDbError("updating text value", result.Error)
			}
			if result.RowsAffected == 0 {
				row := schema.Text{DataId: dataId, ClassId: class.ClassId, Value: value}
				if result := txn.Create(&row); result.Error != nil {
					return schema.NewDbError("creating text value", result.Error)
				}
			}

			if tag != SystemHierarchy && tag != parent.Hierarchy() {
				var existing int64
				result := txn.Model(&schema.Tag{}).
					Where("data_id = ? AND object_id = ?", dataId, tagObj.Id()).Count(&existing)
				if result.Error != nil {
					return schema.NewDbError("checking for existing text tag", result.Error)
				}
				if existing == 0 {
					row := schema.Tag{DataId: dataId, ObjectId: tagObj.Id()}
					if result := txn.Create(&row); result.Error != nil {
						return schema.NewDbError("creating text tag", result.Error)
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
