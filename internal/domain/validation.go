package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// WorkoutInput is the editable part of a workout.
type WorkoutInput struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description *string     `json:"description"`
	Difficulty  *Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	IsPublic    bool        `json:"is_public"`
}

// ExerciseInput is the editable part of an exercise.
type ExerciseInput struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Sets  *int    `json:"sets" validate:"omitempty,min=1"`
	Reps  *string `json:"reps"`
	Notes *string `json:"notes"`
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return invalid(problems...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// optional trims s and maps blank values to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (in WorkoutInput) normalized() WorkoutInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = optional(in.Description)
	if in.Difficulty != nil && *in.Difficulty == "" {
		in.Difficulty = nil
	}
	return in
}

func (in ExerciseInput) normalized() ExerciseInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Reps = optional(in.Reps)
	in.Notes = optional(in.Notes)
	return in
}

func (in ProfileInput) normalized() ProfileInput {
	in.FullName = optional(in.FullName)
	in.AvatarURL = optional(in.AvatarURL)
	return in
}
