// Package model is the data-model engine over a loaded Plexos store: it
// discovers which attributes and properties are legal per class, resolves
// effective property values with tag and band handling, and mutates objects,
// memberships and categories while keeping the denormalized tables
// consistent.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// SystemHierarchy addresses the root System object that owns every object's
// base membership.
const SystemHierarchy = "System.System"

// Model is the top-level index over one open store. It is a single-writer,
// synchronous handle: callers must not share it across concurrent mutators.
type Model struct {
	db  *gorm.DB
	ids *schema.IdAllocator

	// hasDataUid is false for documents whose data table carries no uid
	// column; list ordering then falls back to row order.
	hasDataUid bool

	classByName map[string]*Class
	classById   map[int]*Class

	// hierarchyCache maps object id to "Class.Object". Hierarchies are
	// looked up constantly and never invalidated: renames made after a
	// lookup are not reflected for the life of this Model.
	hierarchyCache map[int]string
}

// Open builds a Model over a store previously populated by the loader.
func Open(db *gorm.DB) (*Model, error) {
	m := &Model{
		db:             db,
		classByName:    make(map[string]*Class),
		classById:      make(map[int]*Class),
		hierarchyCache: make(map[int]string),
	}

	ids, err := schema.NewIdAllocator(db)
	if err != nil {
		return nil, err
	}
	m.ids = ids

	var withUid int64
	result := db.Model(&schema.Data{}).Where("uid IS NOT NULL").Count(&withUid)
	if result.Error != nil {
		return nil, schema.NewDbError("checking for data uid column", result.Error)
	}
	m.hasDataUid = withUid > 0
	if !m.hasDataUid {
		slog.Info("data table has no uid values, property ordering falls back to row order")
	}

	return m, nil
}

func (m *Model) DB() *gorm.DB { return m.db }

// Class returns the descriptor for a class by name, building it on first
// access. A malformed document (duplicate property names under one parent)
// fails here with ErrDuplicateDefinition.
func (m *Model) Class(name string) (*Class, error) {
	if class, ok := m.classByName[name]; ok {
		return class, nil
	}

	meta, found, err := schema.GetClassByName(m.db, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: '%v'", ErrNoSuchClass, name)
	}

	class, err := newClass(m, meta)
	if err != nil {
		return nil, err
	}
	m.classByName[meta.Name] = class
	m.classById[meta.ClassId] = class
	return class, nil
}

func (m *Model) ClassById(classId int) (*Class, error) {
	if class, ok := m.classById[classId]; ok {
		return class, nil
	}
	meta, err := schema.GetClassById(m.db, classId)
	if err != nil {
		return nil, err
	}
	return m.Class(meta.Name)
}

// ListClasses returns all class names in class_id order.
func (m *Model) ListClasses() ([]string, error) {
	var classes []schema.Class
	result := m.db.Order("class_id").Find(&classes)
	if result.Error != nil {
		return nil, schema.NewDbError("listing classes", result.Error)
	}
	names := make([]string, 0, len(classes))
	for _, class := range classes {
		names = append(names, class.Name)
	}
	return names, nil
}

// ListObjects returns the names of every object in the named class.
func (m *Model) ListObjects(className string) ([]string, error) {
	class, err := m.Class(className)
	if err != nil {
		return nil, err
	}
	return class.Objects()
}

// HierarchyForObjectId returns "Class.Object" for an object id. Results are
// cached for the life of the Model.
func (m *Model) HierarchyForObjectId(objectId int) (string, error) {
	if hier, ok := m.hierarchyCache[objectId]; ok {
		return hier, nil
	}

	var row struct {
		ClassName  string
		ObjectName string
	}
	result := m.db.Table("object").
		Select("class.name AS class_name, object.name AS object_name").
		Joins("INNER JOIN class ON class.class_id = object.class_id").
		Where("object.object_id = ?", objectId).
		Scan(&row)
	if result.Error != nil {
		return "", schema.NewDbError("resolving object hierarchy", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("%w: id %v", ErrNoSuchObject, objectId)
	}

	hier := row.ClassName + "." + row.ObjectName
	m.hierarchyCache[objectId] = hier
	return hier, nil
}

func (m *Model) ObjectById(objectId int) (*Object, error) {
	hier, err := m.HierarchyForObjectId(objectId)
	if err != nil {
		return nil, err
	}
	return m.Object(hier)
}

// Object resolves a "Class.Object" hierarchy to a handle.
func (m *Model) Object(hierarchy string) (*Object, error) {
	segments, err := m.splitHierarchy(hierarchy)
	if err != nil {
		return nil, err
	}
	if len(segments) != 2 {
		return nil, fmt.Errorf("%w: '%v' is not a Class.Object hierarchy", ErrNoSuchObject, hierarchy)
	}
	class, err := m.Class(segments[0])
	if err != nil {
		return nil, err
	}
	return class.Object(segments[1])
}

// splitHierarchy splits on '.', falling back to '|' for names that contain
// dots. The first segment must name a class.
func (m *Model) splitHierarchy(identifier string) ([]string, error) {
	segments := strings.Split(identifier, ".")
	if _, found, err := schema.GetClassByName(m.db, segments[0]); err != nil {
		return nil, err
	} else if found {
		return segments, nil
	}

	segments = strings.Split(identifier, "|")
	if _, found, err := schema.GetClassByName(m.db, segments[0]); err != nil {
		return nil, err
	} else if !found {
		return nil, fmt.Errorf("%w: '%v'", ErrNoSuchClass, segments[0])
	}
	return segments, nil
}

// GetByHierarchy resolves "Class", "Class.Object" or
// "Class.Object.Attribute" ('|'-delimited when a segment contains '.') to a
// *Class, *Object or attribute value string.
func (m *Model) GetByHierarchy(identifier string) (interface{}, error) {
	segments, err := m.splitHierarchy(identifier)
	if err != nil {
		return nil, err
	}

	class, err := m.Class(segments[0])
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 {
		return class, nil
	}

	object, err := class.Object(segments[1])
	if err != nil {
		return nil, err
	}
	if len(segments) == 2 {
		return object, nil
	}

	return object.GetAttribute(segments[2])
}

// Set writes a scalar attribute addressed as "Class.Object.Attribute".
func (m *Model) Set(identifier string, value string) error {
	segments, err := m.splitHierarchy(identifier)
	if err != nil {
		return err
	}
	if len(segments) != 3 {
		return fmt.Errorf("%w: set requires a Class.Object.Attribute identifier, got '%v'",
			ErrUnsupportedOperation, identifier)
	}

	object, err := m.Object(segments[0] + "." + segments[1])
	if err != nil {
		return err
	}
	return object.SetAttribute(segments[2], value)
}

// GetConfig reads a global setting from the config table.
func (m *Model) GetConfig(key string) (string, error) {
	var config schema.Config
	result := m.db.First(&config, "element = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: '%v'", ErrNoSuchConfig, key)
		}
		return "", schema.NewDbError("retrieving config element", result.Error)
	}
	if config.Value == nil {
		return "", nil
	}
	return *config.Value, nil
}

func (m *Model) SetConfig(key, value string) error {
	result := m.db.Model(&schema.Config{}).Where("element = ?", key).Update("value", value)
	if result.Error != nil {
		return schema.NewDbError("updating config element", result.Error)
	}
	if result.RowsAffected == 0 {
		result = m.db.Create(&schema.Config{Element: key, Value: &value})
		if result.Error != nil {
			return schema.NewDbError("creating config element", result.Error)
		}
	}
	return nil
}
