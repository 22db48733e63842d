// Package schema defines the relational tables a Plexos master dataset is
// loaded into. Table and column names match the t_* elements of the source
// document so that a loaded store can be written back without translation.
package schema

// ExtraColumns holds document columns that have no dedicated struct field.
// They are carried through load, edit and save untouched; the order they are
// written back in comes from the column order recorded in Meta.
type ExtraColumns map[string]string

type Class struct {
	ClassId int `gorm:"primaryKey"`
	Name    string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Class) TableName() string { return "class" }

type Object struct {
	ObjectId   int `gorm:"primaryKey"`
	ClassId    int
	Name       string
	CategoryId *int
	// GUID appears in schema version 7 and later and must be unique across
	// all objects.
	GUID *string `gorm:"column:GUID"`

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Object) TableName() string { return "object" }

type Attribute struct {
	AttributeId int `gorm:"primaryKey"`
	ClassId     int
	Name        string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Attribute) TableName() string { return "attribute" }

type AttributeData struct {
	ObjectId    int `gorm:"primaryKey"`
	AttributeId int `gorm:"primaryKey"`
	Value       string
}

func (AttributeData) TableName() string { return "attribute_data" }

type Collection struct {
	CollectionId  int `gorm:"primaryKey"`
	ParentClassId int
	ChildClassId  int
	Name          *string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Collection) TableName() string { return "collection" }

// Property values are kept as document strings: IsDynamic and IsEnabled hold
// "true"/"false" and are rewritten in place when a tag-override write
// promotes the property to dynamic.
type Property struct {
	PropertyId   int `gorm:"primaryKey"`
	CollectionId int
	Name         string
	InputMask    *string
	IsDynamic    *string
	IsEnabled    *string
	MaxBandId    *string
	DefaultValue *string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Property) TableName() string { return "property" }

type Membership struct {
	MembershipId   int `gorm:"primaryKey"`
	ParentClassId  int
	ParentObjectId int
	CollectionId   int
	ChildClassId   int
	ChildObjectId  int

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Membership) TableName() string { return "membership" }

// Data rows with the same (membership_id, property_id) form an ordered list.
// Uid is optional; some documents omit it entirely and fall back to row
// order.
type Data struct {
	DataId       int `gorm:"primaryKey"`
	MembershipId int
	PropertyId   int
	Value        string
	Uid          *int

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Data) TableName() string { return "data" }

type Band struct {
	DataId int `gorm:"primaryKey"`
	BandId int `gorm:"primaryKey"`
}

func (Band) TableName() string { return "band" }

// Tag redirects the effective scope of a datum from its membership's parent
// object to the tagged object, typically a Scenario.
type Tag struct {
	DataId   int `gorm:"primaryKey"`
	ObjectId int `gorm:"primaryKey"`

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Tag) TableName() string { return "tag" }

type Text struct {
	DataId  int `gorm:"primaryKey"`
	ClassId int `gorm:"primaryKey"`
	Value   string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Text) TableName() string { return "text" }

// Category rank is a document string holding an integer; ordering parses it.
type Category struct {
	CategoryId int `gorm:"primaryKey"`
	ClassId    int
	Rank       string
	Name       string

	Extra ExtraColumns `gorm:"serializer:json"`
}

func (Category) TableName() string { return "category" }

type Config struct {
	Element string `gorm:"primaryKey"`
	Value   *string
}

func (Config) TableName() string { return "config" }

// Meta records document facts that live outside the data tables: the XML
// namespace, the root element name and per-table column order.
type Meta struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

func (Meta) TableName() string { return "plexos_meta" }

// RawRow preserves rows of document tables the engine has no model for.
// They are written back under their original table name on save.
type RawRow struct {
	RawRowId int          `gorm:"primaryKey;autoIncrement"`
	Table    string       `gorm:"column:table_name;index"`
	Fields   ExtraColumns `gorm:"serializer:json"`
}

func (RawRow) TableName() string { return "raw_row" }

// Tables lists every gorm model for migration, in dependency order.
func Tables() []interface{} {
	return []interface{}{
		&Class{}, &Object{}, &Attribute{}, &AttributeData{},
		&Collection{}, &Property{}, &Membership{}, &Data{},
		&Band{}, &Tag{}, &Text{}, &Category{}, &Config{},
		&Meta{}, &RawRow{},
	}
}
