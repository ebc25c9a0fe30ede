package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FormStore abstracts the form-definition list as one replaceable document.
type FormStore interface {
	LoadForms() ([]Form, error)
	SaveForms([]Form) error
}

// FormService owns form definitions. Forms are plain glue around the journal:
// the calendar view needs their names, ingestion needs their ids to exist.
type FormService struct {
	mu    sync.Mutex
	store FormStore
}

func NewFormService(store FormStore) *FormService {
	return &FormService{store: store}
}

func (s *FormService) List() ([]Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	forms, err := s.store.LoadForms()
	if err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}
	return forms, nil
}

// Add stores a form definition, assigning an id when the caller left it out.
func (s *FormService) Add(f Form) (*Form, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, NewInvalidError("form name is required")
	}
	if f.ID == "" {
		f.ID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	forms, err := s.store.LoadForms()
	if err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}
	forms = append(forms, f)
	if err := s.store.SaveForms(forms); err != nil {
		return nil, fmt.Errorf("save forms: %w", err)
	}
	return &f, nil
}

// Delete removes a form definition. Fails with NotFound when absent.
func (s *FormService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	forms, err := s.store.LoadForms()
	if err != nil {
		return fmt.Errorf("load forms: %w", err)
	}
	kept := make([]Form, 0, len(forms))
	for _, f := range forms {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(forms) {
		return NewNotFoundError("form not found")
	}
	if err := s.store.SaveForms(kept); err != nil {
		return fmt.Errorf("save forms: %w", err)
	}
	return nil
}

// NamesByID returns a form id → display name map for calendar rendering.
func (s *FormService) NamesByID() (map[string]string, error) {
	forms, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(forms))
	for _, f := range forms {
		names[f.ID] = f.Name
	}
	return names, nil
}
