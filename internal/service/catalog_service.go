package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type catalogRepository interface {
	CreateUniversity(ctx context.Context, u *models.University) error
	FindUniversityByID(ctx context.Context, id string) (*models.University, error)
	ListUniversities(ctx context.Context) ([]models.University, error)
	UpdateUniversity(ctx context.Context, u *models.University) error
	DeleteUniversity(ctx context.Context, id string) error
	CreateCourse(ctx context.Context, c *models.Course) error
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	UpdateCourse(ctx context.Context, c *models.Course) error
	DeleteCourse(ctx context.Context, id string) error
}

var _ catalogRepository = (*repository.CatalogRepository)(nil)

// CatalogService manages universities and courses.
type CatalogService struct {
	repo      catalogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService instance.
func NewCatalogService(repo catalogRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{repo: repo, validator: validate, logger: logger}
}

// CreateUniversity adds a university to the catalog.
func (s *CatalogService) CreateUniversity(ctx context.Context, req dto.CreateUniversityRequest) (*models.University, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid university payload")
	}
	u := &models.University{Name: req.Name, ShortName: req.ShortName, Country: req.Country}
	if err := s.repo.CreateUniversity(ctx, u); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create university")
	}
	return u, nil
}

// GetUniversity returns a university by id.
func (s *CatalogService) GetUniversity(ctx context.Context, id string) (*models.University, error) {
	u, err := s.repo.FindUniversityByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "university not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load university")
	}
	return u, nil
}

// ListUniversities returns the full catalog.
func (s *CatalogService) ListUniversities(ctx context.Context) ([]models.University, error) {
	list, err := s.repo.ListUniversities(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list universities")
	}
	return list, nil
}

// UpdateUniversity patches a university entry.
func (s *CatalogService) UpdateUniversity(ctx context.Context, id string, req dto.UpdateUniversityRequest) (*models.University, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid university payload")
	}
	u, err := s.GetUniversity(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.ShortName != nil {
		u.ShortName = *req.ShortName
	}
	if req.Country != nil {
		u.Country = *req.Country
	}
	if err := s.repo.UpdateUniversity(ctx, u); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update university")
	}
	return u, nil
}

// DeleteUniversity removes a university.
func (s *CatalogService) DeleteUniversity(ctx context.Context, id string) error {
	if _, err := s.GetUniversity(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteUniversity(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete university")
	}
	return nil
}

// CreateCourse adds a course under an existing university.
func (s *CatalogService) CreateCourse(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.GetUniversity(ctx, req.UniversityID); err != nil {
		return nil, err
	}
	c := &models.Course{
		UniversityID: req.UniversityID,
		Faculty:      req.Faculty,
		Department:   req.Department,
		Code:         req.Code,
		Title:        req.Title,
	}
	if err := s.repo.CreateCourse(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return c, nil
}

// GetCourse returns a course by id.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	c, err := s.repo.FindCourseByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return c, nil
}

// ListCourses returns courses matching the filter with pagination metadata.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.ListCourses(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateCourse patches a course entry.
func (s *CatalogService) UpdateCourse(ctx context.Context, id string, req dto.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	c, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Faculty != nil {
		c.Faculty = *req.Faculty
	}
	if req.Department != nil {
		c.Department = *req.Department
	}
	if req.Code != nil {
		c.Code = *req.Code
	}
	if req.Title != nil {
		c.Title = *req.Title
	}
	if err := s.repo.UpdateCourse(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return c, nil
}

// DeleteCourse removes a course.
func (s *CatalogService) DeleteCourse(ctx context.Context, id string) error {
	if _, err := s.GetCourse(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteCourse(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}
