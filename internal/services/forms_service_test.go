package services

import "testing"

type stubFormStore struct {
	forms []Form
}

func (s *stubFormStore) LoadForms() ([]Form, error) {
	out := make([]Form, len(s.forms))
	copy(out, s.forms)
	return out, nil
}

func (s *stubFormStore) SaveForms(forms []Form) error {
	s.forms = make([]Form, len(forms))
	copy(s.forms, forms)
	return nil
}

func TestFormAddAssignsID(t *testing.T) {
	svc := NewFormService(&stubFormStore{})
	f, err := svc.Add(Form{Name: "주간 퀴즈"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if f.ID == "" {
		t.Fatal("expected generated id")
	}
	names, err := svc.NamesByID()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if names[f.ID] != "주간 퀴즈" {
		t.Fatalf("unexpected names map: %v", names)
	}
}

func TestFormDeleteNotFound(t *testing.T) {
	svc := NewFormService(&stubFormStore{forms: []Form{{ID: "F1", Name: "quiz"}}})
	err := svc.Delete("missing")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := svc.Delete("F1"); err != nil {
		t.Fatalf("delete existing: %v", err)
	}
	forms, _ := svc.List()
	if len(forms) != 0 {
		t.Fatalf("form survived delete: %v", forms)
	}
}

func TestFormAddRequiresName(t *testing.T) {
	svc := NewFormService(&stubFormStore{})
	if _, err := svc.Add(Form{}); err == nil {
		t.Fatal("expected validation error for unnamed form")
	}
}
