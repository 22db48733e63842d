package xmlio

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// Load streams a master dataset document into the store, creating the schema
// tables first. Tables the engine has no model for are preserved as raw
// rows; unknown columns of known tables are preserved per row. Column order
// as encountered is recorded so Save can reproduce it.
func Load(r io.Reader, db *gorm.DB) error {
	loadStart := time.Now()

	if err := db.AutoMigrate(schema.Tables()...); err != nil {
		return fmt.Errorf("migrating store schema: %w", err)
	}

	decoder := xml.NewDecoder(r)

	var namespace, rootElement string
	columnOrder := make(map[string][]string)
	columnSeen := make(map[string]map[string]bool)
	rowCount := 0

	recordColumns := func(table string, fields []xmlField) {
		if columnSeen[table] == nil {
			columnSeen[table] = make(map[string]bool)
		}
		for _, f := range fields {
			if !columnSeen[table][f.name] {
				columnSeen[table][f.name] = true
				columnOrder[table] = append(columnOrder[table], f.name)
			}
		}
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parsing document: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if rootElement == "" {
			rootElement = start.Name.Local
			namespace = start.Name.Space
			continue
		}
		if !strings.HasPrefix(start.Name.Local, "t_") {
			if err := decoder.Skip(); err != nil {
				return fmt.Errorf("skipping element %v: %w", start.Name.Local, err)
			}
			continue
		}

		table := start.Name.Local[2:]
		fields, err := readRow(decoder, start)
		if err != nil {
			return fmt.Errorf("reading %v row: %w", table, err)
		}
		recordColumns(table, fields)

		if err := insertRow(db, table, fields); err != nil {
			return fmt.Errorf("loading %v row %+v: %w", table, fields, err)
		}
		rowCount++
	}

	orderJson, err := json.Marshal(columnOrder)
	if err != nil {
		return fmt.Errorf("encoding column order: %w", err)
	}
	meta := []schema.Meta{
		{Name: metaNamespace, Value: namespace},
		{Name: metaRootElement, Value: rootElement},
		{Name: metaColumnOrder, Value: string(orderJson)},
	}
	for _, row := range meta {
		if result := db.Create(&row); result.Error != nil {
			return schema.NewDbError("recording document metadata", result.Error)
		}
	}

	slog.Info("document loaded", "rows", rowCount, "duration", time.Since(loadStart))
	return nil
}

// readRow consumes the children of one t_* element in document order.
func readRow(decoder *xml.Decoder, parent xml.StartElement) ([]xmlField, error) {
	var fields []xmlField
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			var value string
			if err := decoder.DecodeElement(&value, &t); err != nil {
				return nil, err
			}
			fields = append(fields, xmlField{name: t.Name.Local, value: value})
		case xml.EndElement:
			if t.Name.Local == parent.Name.Local {
				return fields, nil
			}
		}
	}
}

func insertRow(db *gorm.DB, table string, fields []xmlField) error {
	r := newRowFields(fields)

	buildRow := func() (interface{}, error) {
		switch table {
		case "class":
			id, err := r.intVal("class_id")
			if err != nil {
				return nil, err
			}
			return &schema.Class{ClassId: id, Name: r.str("name"), Extra: r.extra()}, nil

		case "object":
			id, err := r.intVal("object_id")
			if err != nil {
				return nil, err
			}
			classId, err := r.intVal("class_id")
			if err != nil {
				return nil, err
			}
			categoryId, err := r.optInt("category_id")
			if err != nil {
				return nil, err
			}
			return &schema.Object{
				ObjectId:   id,
				ClassId:    classId,
				Name:       r.str("name"),
				CategoryId: categoryId,
				GUID:       r.optStr("GUID"),
				Extra:      r.extra(),
			}, nil

		case "attribute":
			id, err := r.intVal("attribute_id")
			if err != nil {
				return nil, err
			}
			classId, err := r.intVal("class_id")
			if err != nil {
				return nil, err
			}
			return &schema.Attribute{AttributeId: id, ClassId: classId, Name: r.str("name"), Extra: r.extra()}, nil

		case "attribute_data":
			objectId, err := r.intVal("object_id")
			if err != nil {
				return nil, err
			}
			attributeId, err := r.intVal("attribute_id")
			if err != nil {
				return nil, err
			}
			return &schema.AttributeData{ObjectId: objectId, AttributeId: attributeId, Value: r.str("value")}, nil

		case "collection":
			id, err := r.intVal("collection_id")
			if err != nil {
				return nil, err
			}
			parentClassId, err := r.intVal("parent_class_id")
			if err != nil {
				return nil, err
			}
			childClassId, err := r.intVal("child_class_id")
			if err != nil {
				return nil, err
			}
			return &schema.Collection{
				CollectionId:  id,
				ParentClassId: parentClassId,
				ChildClassId:  childClassId,
				Name:          r.optStr("name"),
				Extra:         r.extra(),
			}, nil

		case "property":
			id, err := r.intVal("property_id")
			if err != nil {
				return nil, err
			}
			collectionId, err := r.intVal("collection_id")
			if err != nil {
				return nil, err
			}
			return &schema.Property{
				PropertyId:   id,
				CollectionId: collectionId,
				Name:         r.str("name"),
				InputMask:    r.optStr("input_mask"),
				IsDynamic:    r.optStr("is_dynamic"),
				IsEnabled:    r.optStr("is_enabled"),
				MaxBandId:    r.optStr("max_band_id"),
				DefaultValue: r.optStr("default_value"),
				Extra:        r.extra(),
			}, nil

		case "membership":
			id, err := r.intVal("membership_id")
			if err != nil {
				return nil, err
			}
			parentClassId, err := r.intVal("parent_class_id")
			if err != nil {
				return nil, err
			}
			parentObjectId, err := r.intVal("parent_object_id")
			if err != nil {
				return nil, err
			}
			collectionId, err := r.intVal("collection_id")
			if err != nil {
				return nil, err
			}
			childClassId, err := r.intVal("child_class_id")
			if err != nil {
				return nil, err
			}
			childObjectId, err := r.intVal("child_object_id")
			if err != nil {
				return nil, err
			}
			return &schema.Membership{
				MembershipId:   id,
				ParentClassId:  parentClassId,
				ParentObjectId: parentObjectId,
				CollectionId:   collectionId,
				ChildClassId:   childClassId,
				ChildObjectId:  childObjectId,
				Extra:          r.extra(),
			}, nil

		case "data":
			id, err := r.intVal("data_id")
			if err != nil {
				return nil, err
			}
			membershipId, err := r.intVal("membership_id")
			if err != nil {
				return nil, err
			}
			propertyId, err := r.intVal("property_id")
			if err != nil {
				return nil, err
			}
			uid, err := r.optInt("uid")
			if err != nil {
				return nil, err
			}
			return &schema.Data{
				DataId:       id,
				MembershipId: membershipId,
				PropertyId:   propertyId,
				Value:        r.str("value"),
				Uid:          uid,
				Extra:        r.extra(),
			}, nil

		case "band":
			dataId, err := r.intVal("data_id")
			if err != nil {
				return nil, err
			}
			bandId, err := r.intVal("band_id")
			if err != nil {
				return nil, err
			}
			return &schema.Band{DataId: dataId, BandId: bandId}, nil

		case "tag":
			dataId, err := r.intVal("data_id")
			if err != nil {
				return nil, err
			}
			objectId, err := r.intVal("object_id")
			if err != nil {
				return nil, err
			}
			return &schema.Tag{DataId: dataId, ObjectId: objectId, Extra: r.extra()}, nil

		case "text":
			dataId, err := r.intVal("data_id")
			if err != nil {
				return nil, err
			}
			classId, err := r.intVal("class_id")
			if err != nil {
				return nil, err
			}
			return &schema.Text{DataId: dataId, ClassId: classId, Value: r.str("value"), Extra: r.extra()}, nil

		case "category":
			id, err := r.intVal("category_id")
			if err != nil {
				return nil, err
			}
			classId, err := r.intVal("class_id")
			if err != nil {
				return nil, err
			}
			return &schema.Category{
				CategoryId: id,
				ClassId:    classId,
				Rank:       r.str("rank"),
				Name:       r.str("name"),
				Extra:      r.extra(),
			}, nil

		case "config":
			return &schema.Config{Element: r.str("element"), Value: r.optStr("value")}, nil

		default:
			raw := make(schema.ExtraColumns, len(fields))
			for _, f := range fields {
				raw[f.name] = f.value
			}
			return &schema.RawRow{Table: table, Fields: raw}, nil
		}
	}

	row, err := buildRow()
	if err != nil {
		return err
	}
	if result := db.Create(row); result.Error != nil {
		return schema.NewDbError("inserting "+table+" row", result.Error)
	}
	return nil
}
