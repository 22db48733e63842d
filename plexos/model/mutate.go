package model

import (
	"fmt"

	"plexedit/plexos/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Copy duplicates this object under a new name: its row, every
// attribute_data row, and every membership on both the parent and the child
// side, each rewritten to the new object id. Data rows referenced by the old
// memberships are deliberately NOT duplicated, so the copy starts without
// the original's property values; consuming tools depend on this.
//
// An empty newName generates "<name>-<uuid>". When the schema carries GUIDs
// a fresh one is assigned.
func (o *Object) Copy(newName string) (*Object, error) {
	if newName == "" {
		newName = o.meta.Name + "-" + uuid.New().String()
	}

	var existing int64
	result := o.model.db.Model(&schema.Object{}).
		Where("class_id = ? AND name = ?", o.meta.ClassId, newName).Count(&existing)
	if result.Error != nil {
		return nil, schema.NewDbError("checking for existing object name", result.Error)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: '%v' in class %v", ErrDuplicateName, newName, o.class.Name())
	}

	newObject := schema.Object{
		ObjectId:   o.model.ids.Next("object"),
		ClassId:    o.meta.ClassId,
		Name:       newName,
		CategoryId: o.meta.CategoryId,
		Extra:      o.meta.Extra,
	}
	if o.meta.GUID != nil {
		guid := uuid.New().String()
		newObject.GUID = &guid
	}

	err := o.model.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&newObject); result.Error != nil {
			return schema.NewDbError("creating object copy", result.Error)
		}

		var attrData []schema.AttributeData
		if result := txn.Find(&attrData, "object_id = ?", o.meta.ObjectId); result.Error != nil {
			return schema.NewDbError("retrieving attribute data to copy", result.Error)
		}
		for _, row := range attrData {
			row.ObjectId = newObject.ObjectId
			if result := txn.Create(&row); result.Error != nil {
				return schema.NewDbError("copying attribute data", result.Error)
			}
		}

		var asParent []schema.Membership
		if result := txn.Find(&asParent, "parent_object_id = ?", o.meta.ObjectId); result.Error != nil {
			return schema.NewDbError("retrieving parent memberships to copy", result.Error)
		}
		for _, row := range asParent {
			row.MembershipId = o.model.ids.Next("membership")
			row.ParentObjectId = newObject.ObjectId
			if result := txn.Create(&row); result.Error != nil {
				return schema.NewDbError("copying parent membership", result.Error)
			}
		}

		var asChild []schema.Membership
		if result := txn.Find(&asChild, "child_object_id = ?", o.meta.ObjectId); result.Error != nil {
			return schema.NewDbError("retrieving child memberships to copy", result.Error)
		}
		for _, row := range asChild {
			row.MembershipId = o.model.ids.Next("membership")
			row.ChildObjectId = newObject.ObjectId
			if result := txn.Create(&row); result.Error != nil {
				return schema.NewDbError("copying child membership", result.Error)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return o.class.Object(newName)
}

// SetChildren rewrites this object's memberships to the given children,
// grouped by child class. With replace set, all existing memberships to each
// affected child class are removed first; otherwise children append.
// Duplicate-edge suppression is best effort: an existing edge to the same
// child object is replaced rather than duplicated. Every child class must
// have a collection from this object's class.
func (o *Object) SetChildren(children []*Object, replace bool) error {
	byClass := make(map[int][]*Object)
	classOrder := []int{}
	for _, child := range children {
		classId := child.Class().Id()
		if _, ok := byClass[classId]; !ok {
			classOrder = append(classOrder, classId)
		}
		byClass[classId] = append(byClass[classId], child)
	}

	// Resolve collections up front so the transaction below only ever
	// touches its own connection.
	collections := make(map[int]int, len(classOrder))
	for _, classId := range classOrder {
		collectionId, err := o.class.CollectionId(classId)
		if err != nil {
			return err
		}
		collections[classId] = collectionId
	}

	return o.model.db.Transaction(func(txn *gorm.DB) error {
		for _, classId := range classOrder {
			collectionId := collections[classId]

			if replace {
				result := txn.Delete(&schema.Membership{},
					"parent_object_id = ? AND child_class_id = ?", o.meta.ObjectId, classId)
				if result.Error != nil {
					return schema.NewDbError("removing replaced memberships", result.Error)
				}
			}

			for _, child := range byClass[classId] {
				result := txn.Delete(&schema.Membership{},
					"parent_object_id = ? AND child_object_id = ?", o.meta.ObjectId, child.Id())
				if result.Error != nil {
					return schema.NewDbError("removing duplicate membership", result.Error)
				}

				membership := schema.Membership{
					MembershipId:   o.model.ids.Next("membership"),
					ParentClassId:  o.meta.ClassId,
					ParentObjectId: o.meta.ObjectId,
					CollectionId:   collectionId,
					ChildClassId:   classId,
					ChildObjectId:  child.Id(),
				}
				if result := txn.Create(&membership); result.Error != nil {
					return schema.NewDbError("creating membership", result.Error)
				}
			}
		}
		return nil
	})
}
