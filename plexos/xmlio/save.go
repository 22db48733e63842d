package xmlio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"plexedit/plexos/schema"

	"gorm.io/gorm"
)

// Save writes the store back to document form. Tables are emitted in sorted
// name order, rows in primary key order, columns in the order recorded at
// load time; fields with no value are omitted entirely.
func Save(db *gorm.DB, w io.Writer) error {
	namespace, rootElement, columnOrder, err := readMeta(db)
	if err != nil {
		return err
	}

	rowsByTable, err := collectRows(db)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(w)
	// UTF-8 BOM, as written by the vendor tooling.
	if _, err := out.WriteString("\ufeff"); err != nil {
		return err
	}
	fmt.Fprintf(out, "<%v xmlns=\"%v\">\r\n", rootElement, namespace)

	tables := make([]string, 0, len(rowsByTable))
	for table := range rowsByTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		for _, row := range rowsByTable[table] {
			writeRow(out, table, row, columnOrder[table])
		}
	}

	fmt.Fprintf(out, "</%v>\r\n", rootElement)
	return out.Flush()
}

func readMeta(db *gorm.DB) (namespace, rootElement string, columnOrder map[string][]string, err error) {
	namespace = defaultNamespace
	rootElement = defaultRootElement
	columnOrder = make(map[string][]string)

	var meta []schema.Meta
	result := db.Find(&meta)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return namespace, rootElement, columnOrder, nil
		}
		return "", "", nil, schema.NewDbError("reading document metadata", result.Error)
	}
	for _, row := range meta {
		switch row.Name {
		case metaNamespace:
			if row.Value != "" {
				namespace = row.Value
			}
		case metaRootElement:
			if row.Value != "" {
				rootElement = row.Value
			}
		case metaColumnOrder:
			if err := json.Unmarshal([]byte(row.Value), &columnOrder); err != nil {
				return "", "", nil, fmt.Errorf("decoding column order metadata: %w", err)
			}
		}
	}
	return namespace, rootElement, columnOrder, nil
}

// collectRows turns every populated table back into ordered field maps.
func collectRows(db *gorm.DB) (map[string][]rowMap, error) {
	out := make(map[string][]rowMap)
	add := func(table string, row rowMap) {
		out[table] = append(out[table], row)
	}

	var classes []schema.Class
	if result := db.Order("class_id").Find(&classes); result.Error != nil {
		return nil, schema.NewDbError("reading class rows", result.Error)
	}
	for _, c := range classes {
		add("class", addExtra(rowMap{"class_id": intp(c.ClassId), "name": strp(c.Name)}, c.Extra))
	}

	var objects []schema.Object
	if result := db.Order("object_id").Find(&objects); result.Error != nil {
		return nil, schema.NewDbError("reading object rows", result.Error)
	}
	for _, o := range objects {
		add("object", addExtra(rowMap{
			"object_id":   intp(o.ObjectId),
			"class_id":    intp(o.ClassId),
			"name":        strp(o.Name),
			"category_id": optIntp(o.CategoryId),
			"GUID":        o.GUID,
		}, o.Extra))
	}

	var attributes []schema.Attribute
	if result := db.Order("attribute_id").Find(&attributes); result.Error != nil {
		return nil, schema.NewDbError("reading attribute rows", result.Error)
	}
	for _, a := range attributes {
		add("attribute", addExtra(rowMap{
			"attribute_id": intp(a.AttributeId),
			"class_id":     intp(a.ClassId),
			"name":         strp(a.Name),
		}, a.Extra))
	}

	var attributeData []schema.AttributeData
	if result := db.Order("object_id, attribute_id").Find(&attributeData); result.Error != nil {
		return nil, schema.NewDbError("reading attribute_data rows", result.Error)
	}
	for _, ad := range attributeData {
		add("attribute_data", rowMap{
			"object_id":    intp(ad.ObjectId),
			"attribute_id": intp(ad.AttributeId),
			"value":        strp(ad.Value),
		})
	}

	var collections []schema.Collection
	if result := db.Order("collection_id").Find(&collections); result.Error != nil {
		return nil, schema.NewDbError("reading collection rows", result.Error)
	}
	for _, c := range collections {
		add("collection", addExtra(rowMap{
			"collection_id":   intp(c.CollectionId),
			"parent_class_id": intp(c.ParentClassId),
			"child_class_id":  intp(c.ChildClassId),
			"name":            c.Name,
		}, c.Extra))
	}

	var properties []schema.Property
	if result := db.Order("property_id").Find(&properties); result.Error != nil {
		return nil, schema.NewDbError("reading property rows", result.Error)
	}
	for _, p := range properties {
		add("property", addExtra(rowMap{
			"property_id":   intp(p.PropertyId),
			"collection_id": intp(p.CollectionId),
			"name":          strp(p.Name),
			"input_mask":    p.InputMask,
			"is_dynamic":    p.IsDynamic,
			"is_enabled":    p.IsEnabled,
			"max_band_id":   p.MaxBandId,
			"default_value": p.DefaultValue,
		}, p.Extra))
	}

	var memberships []schema.Membership
	if result := db.Order("membership_id").Find(&memberships); result.Error != nil {
		return nil, schema.NewDbError("reading membership rows", result.Error)
	}
	for _, m := range memberships {
		add("membership", addExtra(rowMap{
			"membership_id":    intp(m.MembershipId),
			"parent_class_id":  intp(m.ParentClassId),
			"parent_object_id": intp(m.ParentObjectId),
			"collection_id":    intp(m.CollectionId),
			"child_class_id":   intp(m.ChildClassId),
			"child_object_id":  intp(m.ChildObjectId),
		}, m.Extra))
	}

	var data []schema.Data
	if result := db.Order("data_id").Find(&data); result.Error != nil {
		return nil, schema.NewDbError("reading data rows", result.Error)
	}
	for _, d := range data {
		add("data", addExtra(rowMap{
			"data_id":       intp(d.DataId),
			"membership_id": intp(d.MembershipId),
			"property_id":   intp(d.PropertyId),
			"value":         strp(d.Value),
			"uid":           optIntp(d.Uid),
		}, d.Extra))
	}

	var bands []schema.Band
	if result := db.Order("data_id, band_id").Find(&bands); result.Error != nil {
		return nil, schema.NewDbError("reading band rows", result.Error)
	}
	for _, b := range bands {
		add("band", rowMap{"data_id": intp(b.DataId), "band_id": intp(b.BandId)})
	}

	var tags []schema.Tag
	if result := db.Order("data_id, object_id").Find(&tags); result.Error != nil {
		return nil, schema.NewDbError("reading tag rows", result.Error)
	}
	for _, t := range tags {
		add("tag", addExtra(rowMap{"data_id": intp(t.DataId), "object_id": intp(t.ObjectId)}, t.Extra))
	}

	var texts []schema.Text
	if result := db.Order("data_id, class_id").Find(&texts); result.Error != nil {
		return nil, schema.NewDbError("reading text rows", result.Error)
	}
	for _, t := range texts {
		add("text", addExtra(rowMap{
			"data_id":  intp(t.DataId),
			"class_id": intp(t.ClassId),
			"value":    strp(t.Value),
		}, t.Extra))
	}

	var categories []schema.Category
	if result := db.Order("category_id").Find(&categories); result.Error != nil {
		return nil, schema.NewDbError("reading category rows", result.Error)
	}
	for _, c := range categories {
		add("category", addExtra(rowMap{
			"category_id": intp(c.CategoryId),
			"class_id":    intp(c.ClassId),
			"rank":        strp(c.Rank),
			"name":        strp(c.Name),
		}, c.Extra))
	}

	var configs []schema.Config
	if result := db.Order("element").Find(&configs); result.Error != nil {
		return nil, schema.NewDbError("reading config rows", result.Error)
	}
	for _, c := range configs {
		add("config", rowMap{"element": strp(c.Element), "value": c.Value})
	}

	var rawRows []schema.RawRow
	if result := db.Order("raw_row_id").Find(&rawRows); result.Error != nil {
		return nil, schema.NewDbError("reading raw rows", result.Error)
	}
	for _, r := range rawRows {
		row := make(rowMap, len(r.Fields))
		for k, v := range r.Fields {
			row[k] = strp(v)
		}
		add(r.Table, row)
	}

	return out, nil
}

// writeRow emits one t_* element with its present fields, known columns
// first in recorded order, then any columns the order list never saw.
func writeRow(out *bufio.Writer, table string, row rowMap, order []string) {
	var names []string
	written := make(map[string]bool)
	for _, name := range order {
		if row[name] != nil {
			names = append(names, name)
			written[name] = true
		}
	}
	leftover := make([]string, 0)
	for name, value := range row {
		if value != nil && !written[name] {
			leftover = append(leftover, name)
		}
	}
	sort.Strings(leftover)
	names = append(names, leftover...)

	fmt.Fprintf(out, "  <t_%v>\r\n", table)
	for i, name := range names {
		terminator := "\r\n"
		if i == len(names)-1 {
			terminator = ""
		}
		fmt.Fprintf(out, "    <%v>%v</%v>%v", name, escape(*row[name]), name, terminator)
	}
	fmt.Fprintf(out, "</t_%v>\r\n", table)
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return escaper.Replace(s)
}
