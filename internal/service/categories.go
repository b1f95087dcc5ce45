package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

const defaultCategoryColor = "#6b7280"

// FoldCategoryName is the comparison key of a category name: trimmed and
// lower-cased with Turkish rules, so "IŞIK" and "ışık" collide while "I" and
// "i" do not.
func FoldCategoryName(name string) string {
	// a Caser keeps state, one per call
	return cases.Lower(language.Turkish).String(strings.TrimSpace(name))
}

func (s *Session) categoryIndexLocked(id string) int {
	for i, c := range s.data.Categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// nameTakenLocked reports whether another category already uses name.
func (s *Session) nameTakenLocked(name, exceptID string) bool {
	key := FoldCategoryName(name)
	for _, c := range s.data.Categories {
		if c.ID != exceptID && FoldCategoryName(c.Name) == key {
			return true
		}
	}
	return false
}

// AddCategory creates a category. Names are unique regardless of case.
func (s *Session) AddCategory(ctx context.Context, name, color string) (domain.Category, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.AddCategory")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if color = domain.NormalizeHexColor(color); color == "" {
		color = defaultCategoryColor
	}

	if err := s.lockOpen(); err != nil {
		return domain.Category{}, err
	}
	if s.nameTakenLocked(name, "") {
		s.mu.Unlock()
		return domain.Category{}, &domain.ErrConflict{Message: fmt.Sprintf("category %q already exists", name)}
	}

	cat := domain.Category{ID: uuid.NewString(), Name: name, Color: color}
	s.data.Categories = append(s.data.Categories, cat)

	writes := []remoteWrite{s.categoryWrite(cat, "INSERT")}
	writes = append(writes, s.commitLocked(ctx, "Category added")...)
	s.mu.Unlock()

	s.persist(writes...)
	return cat, nil
}

// RenameCategory changes a category's name. Past transactions keep the name
// they were recorded with.
func (s *Session) RenameCategory(ctx context.Context, id, name string) (domain.Category, error) {
	return s.UpdateCategory(ctx, id, name, "")
}

// RecolorCategory changes a category's color. The sentinel category may be
// recolored.
func (s *Session) RecolorCategory(ctx context.Context, id, color string) (domain.Category, error) {
	return s.UpdateCategory(ctx, id, "", color)
}

// UpdateCategory renames and/or recolors a category; empty arguments leave
// the attribute unchanged.
func (s *Session) UpdateCategory(ctx context.Context, id, name, color string) (domain.Category, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.UpdateCategory")
	defer span.End()

	name = strings.TrimSpace(name)
	color = domain.NormalizeHexColor(color)

	if err := s.lockOpen(); err != nil {
		return domain.Category{}, err
	}
	i := s.categoryIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.Category{}, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	cat := s.data.Categories[i]

	if name != "" && name != cat.Name {
		if cat.Name == domain.OtherCategoryName {
			s.mu.Unlock()
			return domain.Category{}, &domain.ErrProtectedCategory{Name: cat.Name}
		}
		if s.nameTakenLocked(name, id) {
			s.mu.Unlock()
			return domain.Category{}, &domain.ErrConflict{Message: fmt.Sprintf("category %q already exists", name)}
		}
		cat.Name = name
	}
	if color != "" {
		cat.Color = color
	}
	s.data.Categories[i] = cat

	writes := []remoteWrite{s.categoryWrite(cat, "UPDATE")}
	writes = append(writes, s.commitLocked(ctx, "Category updated")...)
	s.mu.Unlock()

	s.persist(writes...)
	return cat, nil
}

// DeleteCategory removes a category. Transactions referencing it keep the
// name; analytics file them under the sentinel category.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := mutationTracer.Start(ctx, "Session.DeleteCategory")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	i := s.categoryIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "category", ID: id}
	}
	if s.data.Categories[i].Name == domain.OtherCategoryName {
		s.mu.Unlock()
		return &domain.ErrProtectedCategory{Name: domain.OtherCategoryName}
	}
	s.data.Categories = append(s.data.Categories[:i], s.data.Categories[i+1:]...)

	writes := []remoteWrite{{"categories", "DELETE", func(ctx context.Context) error {
		return s.remote.DeleteCategory(ctx, s.userID, id)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Category deleted")...)
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}

func (s *Session) categoryWrite(cat domain.Category, op string) remoteWrite {
	return remoteWrite{"categories", op, func(ctx context.Context) error {
		return s.remote.UpsertCategory(ctx, s.userID, cat)
	}}
}
