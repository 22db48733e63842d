package model

import (
	"testing"

	"plexedit/plexos/schema"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Class ids used across the test dataset.
const (
	systemClassId      = 1
	generatorClassId   = 2
	lineClassId        = 3
	scenarioClassId    = 4
	performanceClassId = 5
	modelClassId       = 6
	horizonClassId     = 7
	dataFileClassId    = 8
)

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

func setupTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(schema.Tables()...)
	if err != nil {
		t.Fatal(err)
	}

	seed := func(rows ...interface{}) {
		for _, row := range rows {
			if result := db.Create(row); result.Error != nil {
				t.Fatal(result.Error)
			}
		}
	}

	seed(
		&schema.Class{ClassId: systemClassId, Name: "System"},
		&schema.Class{ClassId: generatorClassId, Name: "Generator"},
		&schema.Class{ClassId: lineClassId, Name: "Line"},
		&schema.Class{ClassId: scenarioClassId, Name: "Scenario"},
		&schema.Class{ClassId: performanceClassId, Name: "Performance"},
		&schema.Class{ClassId: modelClassId, Name: "Model"},
		&schema.Class{ClassId: horizonClassId, Name: "Horizon"},
		&schema.Class{ClassId: dataFileClassId, Name: "Data File"},
	)

	seed(
		&schema.Category{CategoryId: 1, ClassId: generatorClassId, Rank: "0", Name: "Thermal"},
		&schema.Category{CategoryId: 2, ClassId: generatorClassId, Rank: "1", Name: "Renewable"},
	)

	seed(
		&schema.Object{ObjectId: 1, ClassId: systemClassId, Name: "System"},
		&schema.Object{ObjectId: 2, ClassId: generatorClassId, Name: "101-1", CategoryId: intPtr(1)},
		&schema.Object{ObjectId: 3, ClassId: generatorClassId, Name: "118-1"},
		&schema.Object{ObjectId: 4, ClassId: lineClassId, Name: "126"},
		&schema.Object{ObjectId: 5, ClassId: scenarioClassId, Name: "RT_UC"},
		&schema.Object{ObjectId: 6, ClassId: performanceClassId, Name: "Gurobi"},
		&schema.Object{ObjectId: 7, ClassId: modelClassId, Name: "Base"},
		&schema.Object{ObjectId: 8, ClassId: horizonClassId, Name: "Base"},
		&schema.Object{ObjectId: 9, ClassId: dataFileClassId, Name: "LoadProfile"},
	)

	seed(
		&schema.Attribute{AttributeId: 1, ClassId: generatorClassId, Name: "Latitude"},
		&schema.Attribute{AttributeId: 2, ClassId: generatorClassId, Name: "Longitude"},
		&schema.Attribute{AttributeId: 3, ClassId: horizonClassId, Name: "Chrono Step Count"},
		&schema.Attribute{AttributeId: 4, ClassId: horizonClassId, Name: "Chrono Date From"},
		&schema.Attribute{AttributeId: 5, ClassId: horizonClassId, Name: "Chrono Step Type"},
		&schema.Attribute{AttributeId: 6, ClassId: horizonClassId, Name: "Chrono At a Time"},
		&schema.Attribute{AttributeId: 7, ClassId: horizonClassId, Name: "Date From"},
		&schema.Attribute{AttributeId: 8, ClassId: horizonClassId, Name: "Step Count"},
		&schema.Attribute{AttributeId: 9, ClassId: horizonClassId, Name: "Step Type"},
	)

	seed(
		&schema.AttributeData{ObjectId: 2, AttributeId: 1, Value: "35"},
		&schema.AttributeData{ObjectId: 2, AttributeId: 2, Value: "-101.5"},
		&schema.AttributeData{ObjectId: 8, AttributeId: 3, Value: "8760"},
		&schema.AttributeData{ObjectId: 8, AttributeId: 4, Value: "41275"},
		&schema.AttributeData{ObjectId: 8, AttributeId: 5, Value: "1"},
	)

	seed(
		&schema.Collection{CollectionId: 1, ParentClassId: systemClassId, ChildClassId: generatorClassId, Name: strPtr("Generators")},
		&schema.Collection{CollectionId: 2, ParentClassId: systemClassId, ChildClassId: lineClassId, Name: strPtr("Lines")},
		&schema.Collection{CollectionId: 3, ParentClassId: systemClassId, ChildClassId: scenarioClassId, Name: strPtr("Scenarios")},
		&schema.Collection{CollectionId: 4, ParentClassId: systemClassId, ChildClassId: performanceClassId, Name: strPtr("Performances")},
		&schema.Collection{CollectionId: 5, ParentClassId: systemClassId, ChildClassId: modelClassId, Name: strPtr("Models")},
		&schema.Collection{CollectionId: 6, ParentClassId: systemClassId, ChildClassId: horizonClassId, Name: strPtr("Horizons")},
		&schema.Collection{CollectionId: 7, ParentClassId: modelClassId, ChildClassId: horizonClassId, Name: strPtr("Horizon")},
		&schema.Collection{CollectionId: 8, ParentClassId: modelClassId, ChildClassId: performanceClassId, Name: strPtr("Performance")},
		&schema.Collection{CollectionId: 9, ParentClassId: systemClassId, ChildClassId: dataFileClassId, Name: strPtr("Data Files")},
	)

	seed(
		&schema.Property{PropertyId: 1, CollectionId: 2, Name: "Max Flow"},
		&schema.Property{PropertyId: 2, CollectionId: 2, Name: "Min Flow"},
		&schema.Property{PropertyId: 3, CollectionId: 1, Name: "Load Point"},
		&schema.Property{PropertyId: 4, CollectionId: 1, Name: "Commit",
			IsDynamic: strPtr("false"), IsEnabled: strPtr("false")},
		&schema.Property{PropertyId: 5, CollectionId: 1, Name: "Status",
			InputMask: strPtr(`-1;"Out";0;"Off";1;"On"`)},
		&schema.Property{PropertyId: 6, CollectionId: 1, Name: "Heat Rate", MaxBandId: strPtr("3")},
		&schema.Property{PropertyId: 7, CollectionId: 1, Name: "Filename", DefaultValue: strPtr("0")},
	)

	seed(
		&schema.Membership{MembershipId: 1, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 1, ChildClassId: generatorClassId, ChildObjectId: 2},
		&schema.Membership{MembershipId: 2, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 1, ChildClassId: generatorClassId, ChildObjectId: 3},
		&schema.Membership{MembershipId: 3, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 2, ChildClassId: lineClassId, ChildObjectId: 4},
		&schema.Membership{MembershipId: 4, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 3, ChildClassId: scenarioClassId, ChildObjectId: 5},
		&schema.Membership{MembershipId: 5, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 4, ChildClassId: performanceClassId, ChildObjectId: 6},
		&schema.Membership{MembershipId: 6, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 5, ChildClassId: modelClassId, ChildObjectId: 7},
		&schema.Membership{MembershipId: 7, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 6, ChildClassId: horizonClassId, ChildObjectId: 8},
		&schema.Membership{MembershipId: 8, ParentClassId: modelClassId, ParentObjectId: 7, CollectionId: 7, ChildClassId: horizonClassId, ChildObjectId: 8},
		&schema.Membership{MembershipId: 9, ParentClassId: systemClassId, ParentObjectId: 1, CollectionId: 9, ChildClassId: dataFileClassId, ChildObjectId: 9},
	)

	seed(
		// Line.126 flow limits.
		&schema.Data{DataId: 1, MembershipId: 3, PropertyId: 1, Value: "9900", Uid: intPtr(1)},
		&schema.Data{DataId: 2, MembershipId: 3, PropertyId: 2, Value: "-9900", Uid: intPtr(2)},
		// Generator.101-1 Load Point curve, a list ordered by uid.
		&schema.Data{DataId: 3, MembershipId: 1, PropertyId: 3, Value: "20", Uid: intPtr(3)},
		&schema.Data{DataId: 4, MembershipId: 1, PropertyId: 3, Value: "19.8", Uid: intPtr(4)},
		&schema.Data{DataId: 5, MembershipId: 1, PropertyId: 3, Value: "16", Uid: intPtr(5)},
		&schema.Data{DataId: 6, MembershipId: 1, PropertyId: 3, Value: "15.8", Uid: intPtr(6)},
		// Generator.118-1 Commit, tagged to Scenario.RT_UC.
		&schema.Data{DataId: 7, MembershipId: 2, PropertyId: 4, Value: "0", Uid: intPtr(7)},
		// Generator.101-1 masked Status.
		&schema.Data{DataId: 8, MembershipId: 1, PropertyId: 5, Value: "0", Uid: intPtr(8)},
		// Generator.118-1 Heat Rate bands, stored out of band order.
		&schema.Data{DataId: 9, MembershipId: 2, PropertyId: 6, Value: "11000", Uid: intPtr(9)},
		&schema.Data{DataId: 10, MembershipId: 2, PropertyId: 6, Value: "10500", Uid: intPtr(10)},
		&schema.Data{DataId: 11, MembershipId: 2, PropertyId: 6, Value: "10000", Uid: intPtr(11)},
		// Generator.101-1 Filename, carrying a text payload.
		&schema.Data{DataId: 12, MembershipId: 1, PropertyId: 7, Value: "0", Uid: intPtr(12)},
	)

	seed(
		&schema.Tag{DataId: 7, ObjectId: 5},
		&schema.Band{DataId: 9, BandId: 2},
		&schema.Band{DataId: 10, BandId: 1},
		&schema.Band{DataId: 11, BandId: 3},
		&schema.Text{DataId: 12, ClassId: dataFileClassId, Value: `\data\load.csv`},
		&schema.Config{Element: "Dynamic", Value: strPtr("0")},
		&schema.Config{Element: "Version", Value: strPtr("7.400")},
	)

	return db
}

func setupTestModel(t *testing.T) *Model {
	m, err := Open(setupTestDb(t))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testObject(t *testing.T, m *Model, hierarchy string) *Object {
	obj, err := m.Object(hierarchy)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}
