package xmlio

import (
	"bytes"
	"strings"
	"testing"

	"plexedit/plexos/model"
	"plexedit/plexos/schema"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDocument is a small master dataset: two classes, a three-element
// Load Point list, a masked property, an unknown column on t_object and an
// unknown t_report table.
const testDocument = `<MasterDataSet xmlns="http://tempuri.org/MasterDataSet.xsd">
  <t_class>
    <class_id>1</class_id>
    <name>System</name></t_class>
  <t_class>
    <class_id>2</class_id>
    <name>Generator</name></t_class>
  <t_object>
    <object_id>1</object_id>
    <class_id>1</class_id>
    <name>System</name></t_object>
  <t_object>
    <object_id>2</object_id>
    <class_id>2</class_id>
    <name>G1</name>
    <chart_id>5</chart_id></t_object>
  <t_attribute>
    <attribute_id>1</attribute_id>
    <class_id>2</class_id>
    <name>Latitude</name></t_attribute>
  <t_attribute_data>
    <object_id>2</object_id>
    <attribute_id>1</attribute_id>
    <value>35</value></t_attribute_data>
  <t_collection>
    <collection_id>1</collection_id>
    <parent_class_id>1</parent_class_id>
    <child_class_id>2</child_class_id>
    <name>Generators</name></t_collection>
  <t_property>
    <property_id>1</property_id>
    <collection_id>1</collection_id>
    <name>Load Point</name></t_property>
  <t_membership>
    <membership_id>1</membership_id>
    <parent_class_id>1</parent_class_id>
    <parent_object_id>1</parent_object_id>
    <collection_id>1</collection_id>
    <child_class_id>2</child_class_id>
    <child_object_id>2</child_object_id></t_membership>
  <t_data>
    <data_id>1</data_id>
    <membership_id>1</membership_id>
    <property_id>1</property_id>
    <value>20</value>
    <uid>1</uid></t_data>
  <t_data>
    <data_id>2</data_id>
    <membership_id>1</membership_id>
    <property_id>1</property_id>
    <value>19.8</value>
    <uid>2</uid></t_data>
  <t_data>
    <data_id>3</data_id>
    <membership_id>1</membership_id>
    <property_id>1</property_id>
    <value>16</value>
    <uid>3</uid></t_data>
  <t_config>
    <element>Version</element>
    <value>7.400</value></t_config>
  <t_config>
    <element>Description</element>
    <value>A &amp; B &lt;test&gt;</value></t_config>
  <t_report>
    <report_id>1</report_id>
    <name>Generation</name></t_report>
</MasterDataSet>
`

func testStore(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func loadTestDocument(t *testing.T) *gorm.DB {
	db := testStore(t)
	if err := Load(strings.NewReader(testDocument), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestLoad(t *testing.T) {
	db := loadTestDocument(t)

	var classCount, dataCount int64
	if result := db.Model(&schema.Class{}).Count(&classCount); result.Error != nil {
		t.Fatal(result.Error)
	}
	if classCount != 2 {
		t.Fatalf("expected 2 classes, got %v", classCount)
	}
	if result := db.Model(&schema.Data{}).Count(&dataCount); result.Error != nil {
		t.Fatal(result.Error)
	}
	if dataCount != 3 {
		t.Fatalf("expected 3 data rows, got %v", dataCount)
	}

	// Unknown column preserved on the object row.
	var obj schema.Object
	if result := db.First(&obj, "object_id = ?", 2); result.Error != nil {
		t.Fatal(result.Error)
	}
	if obj.Extra["chart_id"] != "5" {
		t.Fatalf("expected preserved chart_id column, got %v", obj.Extra)
	}

	// Unknown table preserved as raw rows.
	var raw []schema.RawRow
	if result := db.Find(&raw, "table_name = ?", "report"); result.Error != nil {
		t.Fatal(result.Error)
	}
	if len(raw) != 1 || raw[0].Fields["name"] != "Generation" {
		t.Fatalf("expected preserved report row, got %v", raw)
	}

	// Escaped values are decoded.
	var config schema.Config
	if result := db.First(&config, "element = ?", "Description"); result.Error != nil {
		t.Fatal(result.Error)
	}
	if config.Value == nil || *config.Value != "A & B <test>" {
		t.Fatalf("expected decoded description, got %v", config.Value)
	}
}

func TestSaveFormat(t *testing.T) {
	db := loadTestDocument(t)

	var buf bytes.Buffer
	if err := Save(db, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "\uFEFF") {
		t.Fatal("output missing UTF-8 BOM")
	}
	if !strings.Contains(out, `<MasterDataSet xmlns="http://tempuri.org/MasterDataSet.xsd">`+"\r\n") {
		t.Fatalf("unexpected root element:\n%v", out[:200])
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Fatal("output contains bare newlines")
	}

	// Tables are emitted in sorted name order.
	classIdx := strings.Index(out, "<t_class>")
	objectIdx := strings.Index(out, "<t_object>")
	reportIdx := strings.Index(out, "<t_report>")
	if classIdx == -1 || objectIdx == -1 || reportIdx == -1 {
		t.Fatalf("missing tables in output:\n%v", out)
	}
	if !(classIdx < objectIdx && objectIdx < reportIdx) {
		t.Fatal("tables not in sorted order")
	}

	// Row layout: fields indented, last field abuts the closing tag.
	if !strings.Contains(out, "  <t_class>\r\n    <class_id>1</class_id>\r\n    <name>System</name></t_class>\r\n") {
		t.Fatalf("unexpected class row layout:\n%v", out)
	}

	// Absent optional fields are omitted entirely.
	if strings.Contains(out, "<category_id>") {
		t.Fatal("null category_id should not be written")
	}
	if strings.Contains(out, "<input_mask>") {
		t.Fatal("null input_mask should not be written")
	}

	// Unknown column and raw table come back out.
	if !strings.Contains(out, "<chart_id>5</chart_id>") {
		t.Fatal("preserved chart_id column missing from output")
	}
	if !strings.Contains(out, "<report_id>1</report_id>") {
		t.Fatal("preserved report row missing from output")
	}

	// Special characters are re-escaped.
	if !strings.Contains(out, "A &amp; B &lt;test&gt;") {
		t.Fatal("description not escaped in output")
	}

	// Internal bookkeeping tables stay internal.
	if strings.Contains(out, "plexos_meta") || strings.Contains(out, "raw_row") {
		t.Fatal("bookkeeping tables leaked into output")
	}
}

func TestRoundTrip(t *testing.T) {
	db := loadTestDocument(t)

	var buf bytes.Buffer
	if err := Save(db, &buf); err != nil {
		t.Fatal(err)
	}

	reloaded := testStore(t)
	if err := Load(bytes.NewReader(buf.Bytes()), reloaded); err != nil {
		t.Fatal(err)
	}

	m1, err := model.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := model.Open(reloaded)
	if err != nil {
		t.Fatal(err)
	}

	diff, err := m1.Diff(m2)
	if err != nil {
		t.Fatal(err)
	}
	if len(diff) != 0 {
		t.Fatalf("round trip changed the model:\n%v", strings.Join(diff, "\n"))
	}

	// List ordering survives the round trip.
	gen, err := m2.Object("Generator.G1")
	if err != nil {
		t.Fatal(err)
	}
	loadPoint, err := gen.GetProperty("Load Point")
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"20", "19.8", "16"}
	items := loadPoint.Items()
	if len(items) != len(expected) {
		t.Fatalf("expected %v items, got %v", len(expected), len(items))
	}
	for i, want := range expected {
		if items[i] != want {
			t.Fatalf("expected %v at %v after round trip, got %v", want, i, items[i])
		}
	}

	// Saving the reloaded store reproduces the document.
	var buf2 bytes.Buffer
	if err := Save(reloaded, &buf2); err != nil {
		t.Fatal(err)
	}
	if buf.String() != buf2.String() {
		t.Fatal("second save differs from first")
	}
}
