package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// Class caches, per class, which scalar attributes and which
// collection-scoped properties are legal. Descriptors are built once per
// class on first access and live for the life of the Model.
type Class struct {
	model *Model
	meta  schema.Class

	// ValidAttributes maps attribute name to its definition.
	ValidAttributes map[string]schema.Attribute

	// ValidProperties maps parent class name -> property id -> property,
	// joined through every collection whose child class is this one.
	ValidProperties map[string]map[int]schema.Property

	// ValidPropertiesByName is the inverse index:
	// parent class name -> property name -> property id.
	ValidPropertiesByName map[string]map[string]int
}

func newClass(m *Model, meta schema.Class) (*Class, error) {
	class := &Class{
		model:                 m,
		meta:                  meta,
		ValidAttributes:       make(map[string]schema.Attribute),
		ValidProperties:       make(map[string]map[int]schema.Property),
		ValidPropertiesByName: make(map[string]map[string]int),
	}

	var attributes []schema.Attribute
	result := m.db.Find(&attributes, "class_id = ?", meta.ClassId)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving class attributes", result.Error)
	}
	for _, attr := range attributes {
		class.ValidAttributes[attr.Name] = attr
	}

	var collections []schema.Collection
	result = m.db.Find(&collections, "child_class_id = ?", meta.ClassId)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving class collections", result.Error)
	}

	for _, coll := range collections {
		parent, err := schema.GetClassById(m.db, coll.ParentClassId)
		if err != nil {
			return nil, err
		}

		var properties []schema.Property
		result = m.db.Find(&properties, "collection_id = ?", coll.CollectionId)
		if result.Error != nil {
			return nil, schema.NewDbError("retrieving collection properties", result.Error)
		}

		for _, prop := range properties {
			if class.ValidProperties[parent.Name] == nil {
				class.ValidProperties[parent.Name] = make(map[int]schema.Property)
				class.ValidPropertiesByName[parent.Name] = make(map[string]int)
			}
			if _, exists := class.ValidPropertiesByName[parent.Name][prop.Name]; exists {
				return nil, fmt.Errorf("%w: property '%v' under parent %v in class %v",
					ErrDuplicateDefinition, prop.Name, parent.Name, meta.Name)
			}
			class.ValidProperties[parent.Name][prop.PropertyId] = prop
			class.ValidPropertiesByName[parent.Name][prop.Name] = prop.PropertyId
		}
	}

	return class, nil
}

func (c *Class) Id() int { return c.meta.ClassId }

func (c *Class) Name() string { return c.meta.Name }

// Object returns a handle for the named object of this class.
func (c *Class) Object(name string) (*Object, error) {
	var meta schema.Object
	result := c.model.db.First(&meta, "class_id = ? AND name = ?", c.meta.ClassId, name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: '%v' in %v", ErrNoSuchObject, name, c.meta.Name)
		}
		return nil, schema.NewDbError("retrieving object by name", result.Error)
	}
	return newObject(c.model, c, meta)
}

// Objects lists the names of all objects of this class.
func (c *Class) Objects() ([]string, error) {
	var objects []schema.Object
	result := c.model.db.Order("object_id").Find(&objects, "class_id = ?", c.meta.ClassId)
	if result.Error != nil {
		return nil, schema.NewDbError("listing class objects", result.Error)
	}
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		names = append(names, object.Name)
	}
	return names, nil
}

func (c *Class) Len() (int, error) {
	var count int64
	result := c.model.db.Model(&schema.Object{}).Where("class_id = ?", c.meta.ClassId).Count(&count)
	if result.Error != nil {
		return 0, schema.NewDbError("counting class objects", result.Error)
	}
	return int(count), nil
}

// CollectionId returns the unique collection from this class to the given
// child class. Zero or multiple matches indicate schema corruption.
func (c *Class) CollectionId(childClassId int) (int, error) {
	var collections []schema.Collection
	result := c.model.db.Find(&collections,
		"parent_class_id = ? AND child_class_id = ?", c.meta.ClassId, childClassId)
	if result.Error != nil {
		return 0, schema.NewDbError("retrieving collection", result.Error)
	}
	if len(collections) != 1 {
		return 0, fmt.Errorf("%w: %v rows for parent class %v and child class %v",
			ErrNoSuchCollection, len(collections), c.meta.ClassId, childClassId)
	}
	return collections[0].CollectionId, nil
}

// Categories returns the class's categories ordered by rank.
func (c *Class) Categories() ([]schema.Category, error) {
	var categories []schema.Category
	result := c.model.db.Find(&categories, "class_id = ?", c.meta.ClassId)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving class categories", result.Error)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		ri, _ := strconv.Atoi(categories[i].Rank)
		rj, _ := strconv.Atoi(categories[j].Rank)
		return ri < rj
	})
	return categories, nil
}

// AddCategory appends a category at rank max+1. Names are unique per class.
func (c *Class) AddCategory(name string) error {
	categories, err := c.Categories()
	if err != nil {
		return err
	}
	lastRank := -1
	for _, cat := range categories {
		rank, _ := strconv.Atoi(cat.Rank)
		if rank > lastRank {
			lastRank = rank
		}
		if cat.Name == name {
			return fmt.Errorf("%w: '%v' in class %v", ErrDuplicateCategory, name, c.meta.Name)
		}
	}

	category := schema.Category{
		CategoryId: c.model.ids.Next("category"),
		ClassId:    c.meta.ClassId,
		Rank:       strconv.Itoa(lastRank + 1),
		Name:       name,
	}
	result := c.model.db.Create(&category)
	if result.Error != nil {
		return schema.NewDbError("creating category", result.Error)
	}
	return nil
}
