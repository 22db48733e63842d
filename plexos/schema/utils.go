package schema

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

type DbError struct {
	action string
	err    error
}

func NewDbError(action string, err error) error {
	slog.Error("sql error", "action", action, "error", err)
	return DbError{action: action, err: err}
}

func (e DbError) Error() string {
	return fmt.Sprintf("sql error while %v: %v", e.action, e.err)
}

func (e DbError) Unwrap() error {
	return e.err
}

func GetClassByName(db *gorm.DB, name string) (Class, bool, error) {
	var class Class
	result := db.First(&class, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return class, false, nil
		}
		return class, false, NewDbError("retrieving class by name", result.Error)
	}
	return class, true, nil
}

func GetClassById(db *gorm.DB, classId int) (Class, error) {
	var class Class
	result := db.First(&class, "class_id = ?", classId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return class, fmt.Errorf("no class with id %v", classId)
		}
		return class, NewDbError("retrieving class by id", result.Error)
	}
	return class, nil
}

func GetObjectById(db *gorm.DB, objectId int) (Object, error) {
	var object Object
	result := db.First(&object, "object_id = ?", objectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return object, fmt.Errorf("no object with id %v", objectId)
		}
		return object, NewDbError("retrieving object by id", result.Error)
	}
	return object, nil
}

func GetProperty(db *gorm.DB, propertyId int) (Property, error) {
	var prop Property
	result := db.First(&prop, "property_id = ?", propertyId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return prop, fmt.Errorf("no property with id %v", propertyId)
		}
		return prop, NewDbError("retrieving property by id", result.Error)
	}
	return prop, nil
}

// IdAllocator hands out synthetic primary keys for rows created during an
// editing session. Counters are seeded from the current maximum of each id
// column once at open, so freed ids are never reused.
type IdAllocator struct {
	next map[string]int
}

var allocatedIds = map[string]string{
	"object":     "SELECT COALESCE(MAX(object_id), 0) FROM object",
	"membership": "SELECT COALESCE(MAX(membership_id), 0) FROM membership",
	"data":       "SELECT COALESCE(MAX(data_id), 0) FROM data",
	"category":   "SELECT COALESCE(MAX(category_id), 0) FROM category",
	"uid":        "SELECT COALESCE(MAX(uid), 0) FROM data",
}

func NewIdAllocator(db *gorm.DB) (*IdAllocator, error) {
	alloc := &IdAllocator{next: make(map[string]int, len(allocatedIds))}
	for key, query := range allocatedIds {
		var max int
		result := db.Raw(query).Scan(&max)
		if result.Error != nil {
			return nil, NewDbError(fmt.Sprintf("seeding %v id counter", key), result.Error)
		}
		alloc.next[key] = max
	}
	return alloc, nil
}

// Next returns the next id for the given counter. Panics on unknown counter
// names since those are programming errors, not data errors.
func (a *IdAllocator) Next(key string) int {
	if _, ok := a.next[key]; !ok {
		panic(fmt.Sprintf("unknown id counter %v", key))
	}
	a.next[key]++
	return a.next[key]
}
