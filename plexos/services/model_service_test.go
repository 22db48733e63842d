package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plexedit/plexos/model"
	"plexedit/plexos/schema"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func strPtr(s string) *string { return &s }

func setupTestService(t *testing.T) chi.Router {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(schema.Tables()...); err != nil {
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
		&schema.Class{ClassId: 1, Name: "System"},
		&schema.Class{ClassId: 2, Name: "Generator"},
		&schema.Class{ClassId: 3, Name: "Line"},

		&schema.Object{ObjectId: 1, ClassId: 1, Name: "System"},
		&schema.Object{ObjectId: 2, ClassId: 2, Name: "101-1"},
		&schema.Object{ObjectId: 3, ClassId: 3, Name: "126"},

		&schema.Attribute{AttributeId: 1, ClassId: 2, Name: "Latitude"},
		&schema.AttributeData{ObjectId: 2, AttributeId: 1, Value: "35"},

		&schema.Collection{CollectionId: 1, ParentClassId: 1, ChildClassId: 2},
		&schema.Collection{CollectionId: 2, ParentClassId: 1, ChildClassId: 3},

		&schema.Property{PropertyId: 1, CollectionId: 2, Name: "Max Flow"},
		&schema.Property{PropertyId: 2, CollectionId: 1, Name: "Status",
			InputMask: strPtr(`-1;"Out";0;"Off";1;"On"`)},

		&schema.Membership{MembershipId: 1, ParentClassId: 1, ParentObjectId: 1, CollectionId: 1, ChildClassId: 2, ChildObjectId: 2},
		&schema.Membership{MembershipId: 2, ParentClassId: 1, ParentObjectId: 1, CollectionId: 2, ChildClassId: 3, ChildObjectId: 3},

		&schema.Data{DataId: 1, MembershipId: 2, PropertyId: 1, Value: "9900"},
		&schema.Data{DataId: 2, MembershipId: 1, PropertyId: 2, Value: "0"},

		&schema.Config{Element: "Version", Value: strPtr("7.400")},
	)

	m, err := model.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	return NewModelService(db, m).Routes()
}

func request(t *testing.T, router chi.Router, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("error decoding response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestListEndpoints(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/classes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	classes := decode[[]string](t, w)
	if len(classes) != 3 || classes[0] != "System" || classes[1] != "Generator" {
		t.Fatalf("unexpected classes: %v", classes)
	}

	w = request(t, router, "GET", "/classes/Generator/objects", nil)
	objects := decode[[]string](t, w)
	if len(objects) != 1 || objects[0] != "101-1" {
		t.Fatalf("unexpected objects: %v", objects)
	}

	w = request(t, router, "GET", "/classes/Nuclear/objects", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown class, got %d", w.Code)
	}
}

func TestObjectEndpoints(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/objects/Generator/101-1/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	info := decode[map[string]interface{}](t, w)
	if info["hierarchy"] != "Generator.101-1" {
		t.Fatalf("unexpected hierarchy: %v", info["hierarchy"])
	}
	attrs, ok := info["attributes"].(map[string]interface{})
	if !ok || attrs["Latitude"] != "35" {
		t.Fatalf("unexpected attributes: %v", info["attributes"])
	}
	if _, present := info["category"]; present {
		t.Fatal("expected no category for uncategorized object")
	}

	w = request(t, router, "POST", "/objects/Generator/101-1/attributes",
		map[string]string{"name": "Latitude", "value": "40"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}

	w = request(t, router, "GET", "/objects/Generator/101-1/", nil)
	info = decode[map[string]interface{}](t, w)
	attrs = info["attributes"].(map[string]interface{})
	if attrs["Latitude"] != "40" {
		t.Fatalf("expected updated latitude, got %v", attrs["Latitude"])
	}

	w = request(t, router, "GET", "/objects/Generator/missing/", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown object, got %d", w.Code)
	}
}

func TestPropertyEndpoints(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/objects/Line/126/properties", nil)
	props := decode[map[string]map[string]model.Value](t, w)
	if !props["System.System"]["Max Flow"].Equal(model.Scalar("9900")) {
		t.Fatalf("unexpected properties: %v", props)
	}

	w = request(t, router, "POST", "/objects/Generator/101-1/properties",
		map[string]interface{}{"name": "Status", "value": "On"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}

	w = request(t, router, "GET", "/objects/Generator/101-1/properties", nil)
	props = decode[map[string]map[string]model.Value](t, w)
	if !props["System.System"]["Status"].Equal(model.Scalar("On")) {
		t.Fatalf("unexpected properties after update: %v", props)
	}

	w = request(t, router, "POST", "/objects/Generator/101-1/properties",
		map[string]interface{}{"name": "Status", "value": "Broken"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid mask label, got %d: %v", w.Code, w.Body.String())
	}
}

func TestValueEndpoints(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/value?path=Generator.101-1.Latitude", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	resolved := decode[map[string]interface{}](t, w)
	if resolved["value"] != "35" {
		t.Fatalf("unexpected value: %v", resolved["value"])
	}

	w = request(t, router, "POST", "/value",
		map[string]string{"path": "Generator.101-1.Latitude", "value": "36"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}

	w = request(t, router, "GET", "/value?path=Generator.101-1.Latitude", nil)
	resolved = decode[map[string]interface{}](t, w)
	if resolved["value"] != "36" {
		t.Fatalf("unexpected value after update: %v", resolved["value"])
	}

	w = request(t, router, "GET", "/value", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing path, got %d", w.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/config/Version", nil)
	config := decode[map[string]string](t, w)
	if config["value"] != "7.400" {
		t.Fatalf("unexpected config: %v", config)
	}

	w = request(t, router, "POST", "/config/Version", map[string]string{"value": "8.000"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	w = request(t, router, "GET", "/config/Version", nil)
	config = decode[map[string]string](t, w)
	if config["value"] != "8.000" {
		t.Fatalf("unexpected config after update: %v", config)
	}

	w = request(t, router, "GET", "/config/Missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown element, got %d", w.Code)
	}
}

func TestCopyEndpoint(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "POST", "/objects/Generator/101-1/copy",
		map[string]string{"new_name": "101-2"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	copied := decode[map[string]string](t, w)
	if copied["hierarchy"] != "Generator.101-2" {
		t.Fatalf("unexpected copy response: %v", copied)
	}

	w = request(t, router, "GET", "/classes/Generator/objects", nil)
	objects := decode[[]string](t, w)
	if len(objects) != 2 {
		t.Fatalf("expected 2 generators after copy, got %v", objects)
	}

	w = request(t, router, "POST", "/objects/Generator/101-1/copy",
		map[string]string{"new_name": "101-2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", w.Code)
	}
}

func TestSaveEndpoint(t *testing.T) {
	router := setupTestService(t)

	w := request(t, router, "GET", "/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/xml" {
		t.Fatalf("unexpected content type: %v", got)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "\uFEFF<MasterDataSet") {
		t.Fatalf("unexpected document prefix: %.60q", body)
	}
	if !strings.Contains(body, "<t_class>") || !strings.Contains(body, "<name>101-1</name>") {
		t.Fatal("expected class rows in saved document")
	}
}
