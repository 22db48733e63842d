// Package services exposes a loaded dataset over http. All mutation
// endpoints serialize through one lock since the engine assumes a single
// writer.
package services

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"plexedit/plexos/model"
	"plexedit/plexos/utils"
	"plexedit/plexos/xmlio"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ModelService struct {
	db    *gorm.DB
	model *model.Model

	mu sync.Mutex
}

func NewModelService(db *gorm.DB, m *model.Model) *ModelService {
	return &ModelService{db: db, model: m}
}

func (s *ModelService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/classes", s.ListClasses)
	r.Route("/classes/{class}", func(r chi.Router) {
		r.Get("/objects", s.ListObjects)
		r.Get("/categories", s.ListCategories)
		r.Post("/categories", s.AddCategory)
	})

	r.Route("/objects/{class}/{object}", func(r chi.Router) {
		r.Get("/", s.GetObject)
		r.Post("/attributes", s.SetAttribute)
		r.Delete("/attributes/{attribute}", s.DeleteAttribute)
		r.Get("/properties", s.GetProperties)
		r.Post("/properties", s.SetProperty)
		r.Get("/text", s.GetText)
		r.Post("/text", s.SetText)
		r.Post("/copy", s.CopyObject)
		r.Get("/children", s.GetChildren)
		r.Post("/children", s.SetChildren)
		r.Post("/category", s.SetCategory)
		r.Get("/diff/{other}", s.DiffObject)
	})

	r.Get("/value", s.GetValue)
	r.Post("/value", s.SetValue)

	r.Get("/config/{element}", s.GetConfig)
	r.Post("/config/{element}", s.SetConfig)

	r.Post("/diff", s.DiffDocument)
	r.Get("/save", s.Save)

	return r
}

func (s *ModelService) object(r *http.Request) (*model.Object, error) {
	className, err := utils.URLParam(r, "class")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	objectName, err := utils.URLParam(r, "object")
	if err != nil {
		return nil, CodedError(err, http.StatusBadRequest)
	}
	class, err := s.model.Class(className)
	if err != nil {
		return nil, err
	}
	return class.Object(objectName)
}

func (s *ModelService) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.model.ListClasses()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, classes)
}

func (s *ModelService) ListObjects(w http.ResponseWriter, r *http.Request) {
	className, err := utils.URLParam(r, "class")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	objects, err := s.model.ListObjects(className)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, objects)
}

type categoryInfo struct {
	Name string `json:"name"`
	Rank string `json:"rank"`
}

func (s *ModelService) ListCategories(w http.ResponseWriter, r *http.Request) {
	className, err := utils.URLParam(r, "class")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	class, err := s.model.Class(className)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	categories, err := class.Categories()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	out := make([]categoryInfo, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryInfo{Name: c.Name, Rank: c.Rank})
	}
	utils.WriteJsonResponse(w, out)
}

type addCategoryRequest struct {
	Name string `json:"name"`
}

func (s *ModelService) AddCategory(w http.ResponseWriter, r *http.Request) {
	className, err := utils.URLParam(r, "class")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var params addCategoryRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "category name must be specified", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	class, err := s.model.Class(className)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := class.AddCategory(params.Name); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type objectInfo struct {
	Name       string            `json:"name"`
	Class      string            `json:"class"`
	Hierarchy  string            `json:"hierarchy"`
	Category   string            `json:"category,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

func (s *ModelService) GetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	category, err := obj.Category()
	if err != nil && !errors.Is(err, model.ErrNoSuchCategory) {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, objectInfo{
		Name:       obj.Name(),
		Class:      obj.Class().Name(),
		Hierarchy:  obj.Hierarchy(),
		Category:   category,
		Attributes: obj.Attributes(),
	})
}

type setAttributeRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *ModelService) SetAttribute(w http.ResponseWriter, r *http.Request) {
	var params setAttributeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := obj.SetAttribute(params.Name, params.Value); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ModelService) DeleteAttribute(w http.ResponseWriter, r *http.Request) {
	name, err := utils.URLParam(r, "attribute")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := obj.DeleteAttribute(name); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ModelService) GetProperties(w http.ResponseWriter, r *http.Request) {
	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	properties, err := obj.GetProperties()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, properties)
}

type setPropertyRequest struct {
	Name  string      `json:"name"`
	Value model.Value `json:"value"`
	Tag   string      `json:"tag,omitempty"`
}

func (s *ModelService) SetProperty(w http.ResponseWriter, r *http.Request) {
	var params setPropertyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Tag == "" {
		params.Tag = model.SystemHierarchy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := obj.SetProperty(params.Name, params.Value, params.Tag); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ModelService) GetText(w http.ResponseWriter, r *http.Request) {
	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	text, err := obj.GetText()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, text)
}

type setTextRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
	Class string `json:"class,omitempty"`
}

func (s *ModelService) SetText(w http.ResponseWriter, r *http.Request) {
	var params setTextRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Tag == "" {
		params.Tag = model.SystemHierarchy
	}
	if params.Class == "" {
		params.Class = model.DefaultTextClass
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := obj.SetText(params.Name, params.Value, params.Tag, params.Class); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type copyRequest struct {
	NewName string `json:"new_name,omitempty"`
}

type copyResponse struct {
	Name      string `json:"name"`
	Hierarchy string `json:"hierarchy"`
}

func (s *ModelService) CopyObject(w http.ResponseWriter, r *http.Request) {
	var params copyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	copied, err := obj.Copy(params.NewName)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, copyResponse{Name: copied.Name(), Hierarchy: copied.Hierarchy()})
}

func (s *ModelService) GetChildren(w http.ResponseWriter, r *http.Request) {
	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	children, err := obj.Children(r.URL.Query().Get("class"))
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	hierarchies := make([]string, 0, len(children))
	for _, child := range children {
		hierarchies = append(hierarchies, child.Hierarchy())
	}
	utils.WriteJsonResponse(w, hierarchies)
}

type setChildrenRequest struct {
	Children []string `json:"children"`
	Replace  bool     `json:"replace"`
}

func (s *ModelService) SetChildren(w http.ResponseWriter, r *http.Request) {
	var params setChildrenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if len(params.Children) == 0 {
		http.Error(w, "children must be specified", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	children := make([]*model.Object, 0, len(params.Children))
	for _, hierarchy := range params.Children {
		child, err := s.model.Object(hierarchy)
		if err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		children = append(children, child)
	}
	if err := obj.SetChildren(children, params.Replace); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type setCategoryRequest struct {
	Name string `json:"name"`
}

func (s *ModelService) SetCategory(w http.ResponseWriter, r *http.Request) {
	var params setCategoryRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := obj.SetCategory(params.Name); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *ModelService) DiffObject(w http.ResponseWriter, r *http.Request) {
	otherName, err := utils.URLParam(r, "other")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	obj, err := s.object(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	other, err := obj.Class().Object(otherName)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	diff, err := obj.Diff(other)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, diff)
}

type valueResponse struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

func (s *ModelService) GetValue(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path query parameter", http.StatusBadRequest)
		return
	}
	resolved, err := s.model.GetByHierarchy(path)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	switch v := resolved.(type) {
	case *model.Class:
		objects, err := v.Objects()
		if err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		utils.WriteJsonResponse(w, valueResponse{Path: path, Value: objects})
	case *model.Object:
		utils.WriteJsonResponse(w, valueResponse{Path: path, Value: v.Attributes()})
	default:
		utils.WriteJsonResponse(w, valueResponse{Path: path, Value: v})
	}
}

type setValueRequest struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

func (s *ModelService) SetValue(w http.ResponseWriter, r *http.Request) {
	var params setValueRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.model.Set(params.Path, params.Value); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

type configResponse struct {
	Element string `json:"element"`
	Value   string `json:"value"`
}

func (s *ModelService) GetConfig(w http.ResponseWriter, r *http.Request) {
	element, err := utils.URLParam(r, "element")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := s.model.GetConfig(element)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, configResponse{Element: element, Value: value})
}

type setConfigRequest struct {
	Value string `json:"value"`
}

func (s *ModelService) SetConfig(w http.ResponseWriter, r *http.Request) {
	element, err := utils.URLParam(r, "element")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var params setConfigRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.model.SetConfig(element, params.Value); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

// DiffDocument loads the posted document into a throwaway in-memory store
// and returns the line diff against the loaded one.
func (s *ModelService) DiffDocument(w http.ResponseWriter, r *http.Request) {
	otherDb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error opening comparison store: %v", err), http.StatusInternalServerError)
		return
	}
	if err := xmlio.Load(r.Body, otherDb); err != nil {
		http.Error(w, fmt.Sprintf("error loading comparison document: %v", err), http.StatusBadRequest)
		return
	}
	other, err := model.Open(otherDb)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	diff, err := s.model.Diff(other)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, diff)
}

func (s *ModelService) Save(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	if err := xmlio.Save(s.db, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
